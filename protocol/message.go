package protocol

// Commands
const (
	CmdReady        = "RD" // Worker handshake
	CmdHeartbeat    = "HB" // Keepalive, either direction
	CmdQuit         = "QT" // Quit, either direction
	CmdOpenChannel  = "OC"
	CmdCloseChannel = "CC"
	CmdBroadcast    = "BC"
	CmdAccessToken  = "AT" // Token request, and the token response
	CmdOK           = "OK"
	CmdError        = "ER"
	CmdTrigger      = "TR" // Event delivered to a worker
)

// Socket types carried in the identity field
const (
	SocketTypeRequest = "req"
	SocketTypeDealer  = "dlr"
)

// AccessTokenLength is the exact length of a valid access token (hex digest).
const AccessTokenLength = 128

// Frame is one protocol message: a command code followed by its arguments.
type Frame []string

// NewFrame builds a frame from a command and its arguments.
func NewFrame(cmd string, args ...string) Frame {
	f := make(Frame, 0, len(args)+1)
	f = append(f, cmd)
	return append(f, args...)
}

// Command returns the command code, or an empty string for an empty frame.
func (f Frame) Command() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Arg returns the i-th argument (0-based, command excluded).
func (f Frame) Arg(i int) (string, bool) {
	if i < 0 || i+1 >= len(f) {
		return "", false
	}
	return f[i+1], true
}

// Packet is a decoded frame together with the identity it was sent with.
type Packet struct {
	Identity    string
	HasIdentity bool
	Frame       Frame
}
