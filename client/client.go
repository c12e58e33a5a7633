package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/rs/zerolog"
)

// Status classifies a successful backend response
type Status int

const (
	StatusNone Status = iota
	StatusOK
	StatusToken
)

// String returns a string representation of the status
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusOK:
		return "ok"
	case StatusToken:
		return "token"
	default:
		return "unknown"
	}
}

// Result is the classified response to a request. Token is set only for
// StatusToken.
type Result struct {
	Status Status
	Token  string
}

// Client sends one-shot requests to the backend endpoint. Every request uses
// a fresh connection which is always closed before the call returns.
// Calls on one Client are serialized.
type Client struct {
	endpoint config.Endpoint
	timeout  time.Duration
	identity string

	mu sync.Mutex

	metrics *Metrics
	logger  zerolog.Logger
}

// NewClient creates a request client from a validated configuration.
func NewClient(cfg *config.Client, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return NewClientForEndpoint(cfg.Endpoint, cfg.RequestTimeout, opts...), nil
}

// NewClientForEndpoint creates a request client for an already parsed
// endpoint. A non-positive timeout selects the default.
func NewClientForEndpoint(ep config.Endpoint, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	o := buildOptions("client", opts)

	return &Client{
		endpoint: ep,
		timeout:  timeout,
		identity: newIdentity(protocol.SocketTypeRequest, ep),
		metrics:  o.metrics,
		logger: o.logger.With().
			Str("endpoint", ep.String()).
			Logger(),
	}
}

// Endpoint returns the endpoint requests are sent to.
func (c *Client) Endpoint() config.Endpoint {
	return c.endpoint
}

// Identity returns the identity field sent with every request.
func (c *Client) Identity() string {
	return c.identity
}

// OpenChannel opens the named channel.
func (c *Client) OpenChannel(ctx context.Context, name string) error {
	return c.expectOK(ctx, protocol.NewFrame(protocol.CmdOpenChannel, name))
}

// CloseChannel closes the named channel.
func (c *Client) CloseChannel(ctx context.Context, name string) error {
	return c.expectOK(ctx, protocol.NewFrame(protocol.CmdCloseChannel, name))
}

// Broadcast sends payload to every subscriber of channel. The event name is
// informational only and never goes on the wire.
func (c *Client) Broadcast(ctx context.Context, channel, event, payload string) error {
	c.logger.Debug().
		Str("channel", channel).
		Str("event", event).
		Msg("broadcasting")
	return c.expectOK(ctx, protocol.NewFrame(protocol.CmdBroadcast, channel, payload))
}

// BroadcastEvent encodes data under the event name and broadcasts it.
func (c *Client) BroadcastEvent(ctx context.Context, channel, event string, data any) error {
	payload, err := protocol.EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return c.Broadcast(ctx, channel, event, payload)
}

// BroadcastRaw wraps already-encoded JSON data under the event name and
// broadcasts it.
func (c *Client) BroadcastRaw(ctx context.Context, channel, event, data string) error {
	payload, err := protocol.EncodeRawEvent(event, data)
	if err != nil {
		return err
	}
	return c.Broadcast(ctx, channel, event, payload)
}

// RequestAccessToken asks for a single access token granting the user the
// channel permissions matched by pattern.
func (c *Client) RequestAccessToken(ctx context.Context, userID, pattern string) (string, error) {
	res, err := c.PerformRequest(ctx, protocol.NewFrame(protocol.CmdAccessToken, userID, pattern))
	if err != nil {
		return "", err
	}
	if res.Status != StatusToken {
		return "", fmt.Errorf("%w: expected access token", ErrUnexpectedResponse)
	}
	return res.Token, nil
}

func (c *Client) expectOK(ctx context.Context, f protocol.Frame) error {
	res, err := c.PerformRequest(ctx, f)
	if err != nil {
		return err
	}
	if res.Status != StatusOK {
		return fmt.Errorf("%w: %s: expected OK", ErrUnexpectedResponse, f.Command())
	}
	return nil
}

// PerformRequest sends f on a new connection, reads exactly one response
// frame and classifies it. Backend errors are returned as *protocol.ServerError.
func (c *Client) PerformRequest(ctx context.Context, f protocol.Frame) (res Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	defer func() {
		c.metrics.observeRequest(f.Command(), started, err)
	}()

	// Encoding errors never cost a connection
	data, err := protocol.EncodeWithIdentity(c.identity, f)
	if err != nil {
		return Result{}, err
	}

	conn, err := Dial(ctx, c.endpoint.Address(), c.timeout, c.logger)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, conn.Close)
	defer stop()

	if err := conn.writeEncoded(data, f); err != nil {
		return Result{}, c.interrupted(ctx, err)
	}
	resp, err := conn.ReadFrame(c.timeout)
	if err != nil {
		return Result{}, c.interrupted(ctx, err)
	}

	return classify(resp)
}

// interrupted prefers the context error when ctx closed the connection.
func (c *Client) interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, protocol.ErrEncoding) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func classify(resp protocol.Frame) (Result, error) {
	switch resp.Command() {
	case protocol.CmdOK:
		return Result{Status: StatusOK}, nil
	case protocol.CmdError:
		return Result{}, protocol.ParseServerError(resp.Arg(0))
	case protocol.CmdAccessToken:
		token, ok := resp.Arg(0)
		if ok && len(token) == protocol.AccessTokenLength {
			return Result{Status: StatusToken, Token: token}, nil
		}
	}
	return Result{Status: StatusNone}, nil
}
