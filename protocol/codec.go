package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wire format, per field: [1 byte marker][raw bytes]['\n'], then "\r\n\r\n".
// The marker is the 1-based field index. An identity field, when sent, comes
// first with marker 0x00 so caller fields still start at 0x01.

const (
	fieldSeparator = '\n'
	identityMarker = 0x00

	// MaxFields keeps every marker below '\r', so a marker can never be
	// mistaken for the start of the terminator.
	MaxFields = 12

	// MaxFieldSize bounds a single decoded field.
	MaxFieldSize = 10 * 1024 * 1024
)

// Terminator ends every frame.
var Terminator = []byte("\r\n\r\n")

var (
	ErrEncoding = errors.New("encoding error")
	ErrProtocol = errors.New("protocol error")
)

// ValidateField reports whether s can be carried as a single field.
func ValidateField(s string) error {
	if strings.Contains(s, string(Terminator)) {
		return fmt.Errorf("%w: field contains frame terminator", ErrEncoding)
	}
	if strings.IndexByte(s, fieldSeparator) >= 0 {
		return fmt.Errorf("%w: field contains line feed", ErrEncoding)
	}
	return nil
}

// Encode encodes a frame without identity.
func Encode(f Frame) ([]byte, error) {
	return encode(f, "", false)
}

// EncodeWithIdentity encodes a frame with the identity prepended as field 0.
func EncodeWithIdentity(identity string, f Frame) ([]byte, error) {
	return encode(f, identity, true)
}

func encode(f Frame, identity string, withIdentity bool) ([]byte, error) {
	buf := GetBufferWithSize(frameSizeHint(f, identity))
	defer PutBuffer(buf)

	if err := appendFrame(buf, f, identity, withIdentity); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// WriteFrame encodes f and writes it with a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	return writeFrame(w, f, "", false)
}

// WriteFrameWithIdentity is WriteFrame with the identity prepended.
func WriteFrameWithIdentity(w io.Writer, identity string, f Frame) error {
	return writeFrame(w, f, identity, true)
}

func writeFrame(w io.Writer, f Frame, identity string, withIdentity bool) error {
	buf := GetBufferWithSize(frameSizeHint(f, identity))
	defer PutBuffer(buf)

	if err := appendFrame(buf, f, identity, withIdentity); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func appendFrame(buf *bytes.Buffer, f Frame, identity string, withIdentity bool) error {
	if len(f) == 0 {
		return fmt.Errorf("%w: empty frame", ErrEncoding)
	}
	if len(f) > MaxFields {
		return fmt.Errorf("%w: %d fields exceeds maximum of %d", ErrEncoding, len(f), MaxFields)
	}

	if withIdentity {
		if err := ValidateField(identity); err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		buf.WriteByte(identityMarker)
		buf.WriteString(identity)
		buf.WriteByte(fieldSeparator)
	}

	for i, field := range f {
		if err := ValidateField(field); err != nil {
			return fmt.Errorf("field %d: %w", i+1, err)
		}
		buf.WriteByte(byte(i + 1))
		buf.WriteString(field)
		buf.WriteByte(fieldSeparator)
	}

	buf.Write(Terminator)
	return nil
}

func frameSizeHint(f Frame, identity string) int {
	n := len(identity) + 2 + len(Terminator)
	for _, field := range f {
		n += len(field) + 2
	}
	return n
}

// ReadFrame reads one frame and discards the identity, if any.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	p, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return p.Frame, nil
}

// Decode reads one frame from r. Read failures are wrapped together with
// ErrProtocol so callers can still tell a timeout from a closed stream.
func Decode(r *bufio.Reader) (Packet, error) {
	var p Packet
	for {
		done, err := atTerminator(r)
		if err != nil {
			return Packet{}, err
		}
		if done {
			break
		}

		marker, err := r.ReadByte()
		if err != nil {
			return Packet{}, readError(err)
		}
		content, err := readContent(r)
		if err != nil {
			return Packet{}, err
		}

		expected := len(p.Frame) + 1
		switch {
		case marker == identityMarker && len(p.Frame) == 0 && !p.HasIdentity:
			p.Identity, p.HasIdentity = content, true
		case int(marker) == expected && expected <= MaxFields:
			p.Frame = append(p.Frame, content)
		default:
			return Packet{}, fmt.Errorf("%w: unexpected field marker 0x%02x, expected 0x%02x", ErrProtocol, marker, expected)
		}
	}

	if len(p.Frame) == 0 {
		return Packet{}, fmt.Errorf("%w: frame has no fields", ErrProtocol)
	}
	return p, nil
}

func atTerminator(r *bufio.Reader) (bool, error) {
	peek, err := r.Peek(len(Terminator))
	if err != nil {
		return false, readError(err)
	}
	if !bytes.Equal(peek, Terminator) {
		return false, nil
	}
	_, _ = r.Discard(len(Terminator))
	return true, nil
}

func readContent(r *bufio.Reader) (string, error) {
	var content []byte
	for {
		chunk, err := r.ReadSlice(fieldSeparator)
		if len(content)+len(chunk) > MaxFieldSize+1 {
			return "", fmt.Errorf("%w: field too large", ErrProtocol)
		}
		content = append(content, chunk...)
		if err == nil {
			return string(content[:len(content)-1]), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", readError(err)
		}
	}
}

func readError(err error) error {
	return fmt.Errorf("%w: terminator not found: %w", ErrProtocol, err)
}
