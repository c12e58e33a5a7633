package client

import (
	"strings"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/google/uuid"
)

// newIdentity builds the identity field sent with requests, RD and QT:
// <socket type>:<vhost>:<token>:<uuid>.
func newIdentity(socketType string, ep config.Endpoint) string {
	return strings.Join([]string{socketType, ep.Vhost, ep.Token, uuid.NewString()}, ":")
}
