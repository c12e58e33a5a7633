package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Identity is the parsed identity field: <socket type>:<vhost>:<token>:<id>.
type Identity struct {
	SocketType string
	Vhost      string
	Token      string
	ID         string
}

// ParseIdentity splits an identity field and checks the socket type.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("%w: expected 4 parts, got %d", ErrInvalidIdentity, len(parts))
	}
	id := Identity{
		SocketType: parts[0],
		Vhost:      parts[1],
		Token:      parts[2],
		ID:         parts[3],
	}
	switch id.SocketType {
	case protocol.SocketTypeRequest, protocol.SocketTypeDealer:
	default:
		return Identity{}, fmt.Errorf("%w: unknown socket type %q", ErrInvalidIdentity, id.SocketType)
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("%w: empty id", ErrInvalidIdentity)
	}
	return id, nil
}

// String renders the identity back into its wire form.
func (i Identity) String() string {
	return strings.Join([]string{i.SocketType, i.Vhost, i.Token, i.ID}, ":")
}

type Auth interface {
	Verify(id Identity) error
}

// VhostAuth checks identities against the configured vhost secrets.
type VhostAuth struct {
	secrets map[string][]byte // vhost path -> secret
}

// Ensure VhostAuth implements Auth interface
var _ Auth = (*VhostAuth)(nil)

// NewVhostAuth copies the secrets of vhosts.
func NewVhostAuth(vhosts []config.Vhost) *VhostAuth {
	secrets := make(map[string][]byte, len(vhosts))
	for _, v := range vhosts {
		secrets[v.Path] = []byte(v.Secret)
	}
	return &VhostAuth{secrets: secrets}
}

// Verify accepts identities naming a known vhost with its secret as token.
// A vhost without a secret accepts any token.
func (a *VhostAuth) Verify(id Identity) error {
	secret, ok := a.secrets[id.Vhost]
	if !ok {
		return fmt.Errorf("%w: unknown vhost %q", ErrUnauthorized, id.Vhost)
	}
	if len(secret) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare(secret, []byte(id.Token)) != 1 {
		return fmt.Errorf("%w: invalid token for vhost %q", ErrUnauthorized, id.Vhost)
	}
	return nil
}
