package client

import (
	"context"
	"time"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
)

// Message is an event relayed to a Worker.
type Message struct {
	Event string
	Data  string // Raw JSON

	endpoint config.Endpoint
	timeout  time.Duration
	opts     []Option
}

// Decode unmarshals the event data into v.
func (m *Message) Decode(v any) error {
	return protocol.DecodeData(m.Data, v)
}

// ReplyOn broadcasts a new event on channel through the endpoint the message
// came from.
func (m *Message) ReplyOn(ctx context.Context, channel, event string, data any) error {
	return m.requestClient().BroadcastEvent(ctx, channel, event, data)
}

// CopyTo re-broadcasts the original data on channel, optionally under another
// event name.
func (m *Message) CopyTo(ctx context.Context, channel string, event ...string) error {
	name := m.Event
	if len(event) > 0 && event[0] != "" {
		name = event[0]
	}
	return m.requestClient().BroadcastRaw(ctx, channel, name, m.Data)
}

// DirectReply would answer only the client that triggered the event. The
// backend protocol has no such operation yet.
func (m *Message) DirectReply(ctx context.Context, event string, data any) error {
	return ErrNotImplemented
}

func (m *Message) requestClient() *Client {
	return NewClientForEndpoint(m.endpoint, m.timeout, m.opts...)
}
