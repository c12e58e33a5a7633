package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/Mmx233/Kosmonaut/server/auth"
	"github.com/Mmx233/Kosmonaut/server/connid"
	"github.com/Mmx233/Kosmonaut/server/pool"
	"github.com/rs/zerolog"
)

// handshakeTimeout bounds the wait for the first frame of a connection
const handshakeTimeout = 10 * time.Second

var ErrUnknownVhost = errors.New("unknown vhost")

// Server is a development broker speaking the backend protocol. It answers
// request sockets and relays broadcasts to registered workers.
type Server struct {
	config        *config.Broker
	vhosts        map[string]*vhost // path -> vhost
	authenticator auth.Auth
	logger        zerolog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New creates a broker from its configuration
func New(conf *config.Broker, logger zerolog.Logger) (*Server, error) {
	// Apply defaults to ensure all required fields have values
	conf.ApplyDefaults()
	if conf.DeduplicateVhosts() {
		logger.Warn().Msg("duplicate vhost paths detected and removed")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker configuration: %w", err)
	}

	vhosts := make(map[string]*vhost, len(conf.Vhosts))
	for _, vc := range conf.Vhosts {
		balancer, err := pool.NewBalancer(conf.LoadBalancer)
		if err != nil {
			return nil, err
		}
		vhosts[vc.Path] = newVhost(vc.Path, vc.Secret, vc.Channels, pool.New(vc.Path, balancer, logger))

		logger.Info().
			Str("vhost", vc.Path).
			Str("balancer", balancer.Name()).
			Int("channels", len(vc.Channels)).
			Msg("created vhost")
	}

	return &Server{
		config:        conf,
		vhosts:        vhosts,
		authenticator: auth.NewVhostAuth(conf.Vhosts),
		logger:        logger,
	}, nil
}

// Listen listens on the configured address and serves until ctx is done.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. It closes ln and waits
// for every connection handler before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("broker listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("broker shutting down")
				return nil
			}
			_ = ln.Close()
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Addr returns the listening address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Channels returns the open channels of a vhost, sorted.
func (s *Server) Channels(vhostPath string) ([]string, error) {
	vh, ok := s.vhosts[vhostPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVhost, vhostPath)
	}
	return vh.channelList(), nil
}

// Workers returns the number of workers registered on a vhost.
func (s *Server) Workers(vhostPath string) int {
	vh, ok := s.vhosts[vhostPath]
	if !ok {
		return 0
	}
	return vh.workers.Count()
}

// Trigger delivers an event to one worker of the vhost, as if a frontend
// client had triggered it.
func (s *Server) Trigger(vhostPath, event string, data any) error {
	vh, ok := s.vhosts[vhostPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVhost, vhostPath)
	}
	payload, err := protocol.EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return s.deliver(vh, payload)
}

// deliver relays payload as TR to one worker chosen by the vhost balancer.
func (s *Server) deliver(vh *vhost, payload string) error {
	w, err := vh.workers.Select()
	if err != nil {
		return fmt.Errorf("vhost %s: %w", vh.path, err)
	}
	if err := w.Deliver(payload, s.config.HeartbeatInterval+time.Second); err != nil {
		vh.workers.MarkUnhealthy(w.ID)
		return fmt.Errorf("deliver to %s: %w", w.ID, err)
	}
	return nil
}

// handleConnection reads the first frame, authenticates its identity and
// hands the connection to the request or worker handler.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With().
		Uint64("conn_id", connid.Next()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	// Unblock reads when the broker shuts down
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	r := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	p, err := protocol.Decode(r)
	if err != nil {
		logger.Debug().Err(err).Msg("read first frame failed")
		return
	}
	if !p.HasIdentity {
		logger.Warn().Msg("frame without identity")
		reply(conn, errorFrame(protocol.CodeBadRequest))
		return
	}

	id, err := auth.ParseIdentity(p.Identity)
	if err != nil {
		logger.Warn().Err(err).Msg("malformed identity")
		reply(conn, errorFrame(protocol.CodeBadRequest))
		return
	}
	logger = logger.With().
		Str("socket", id.SocketType).
		Str("vhost", id.Vhost).
		Str("id", id.ID).
		Logger()

	if err := s.authenticator.Verify(id); err != nil {
		logger.Warn().Err(err).Msg("authentication failed")
		reply(conn, errorFrame(protocol.CodeUnauthorized))
		return
	}
	vh := s.vhosts[id.Vhost]

	switch id.SocketType {
	case protocol.SocketTypeRequest:
		resp := s.handleRequest(vh, p.Frame, logger)
		reply(conn, resp)
	case protocol.SocketTypeDealer:
		s.handleWorker(ctx, conn, r, vh, id.ID, p.Frame, logger)
	}
}

func reply(conn net.Conn, f protocol.Frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	_ = protocol.WriteFrame(conn, f)
}

func errorFrame(code int) protocol.Frame {
	return protocol.NewFrame(protocol.CmdError, strconv.Itoa(code))
}

// handleRequest answers a single request frame.
func (s *Server) handleRequest(vh *vhost, f protocol.Frame, logger zerolog.Logger) protocol.Frame {
	cmd := f.Command()
	logger = logger.With().Str("command", cmd).Logger()

	switch cmd {
	case protocol.CmdOpenChannel:
		name, ok := f.Arg(0)
		if !ok {
			return errorFrame(protocol.CodeBadRequest)
		}
		if !channelName.MatchString(name) {
			return errorFrame(protocol.CodeInvalidChannelName)
		}
		vh.openChannel(name)
		logger.Info().Str("channel", name).Msg("channel opened")
		return protocol.NewFrame(protocol.CmdOK)

	case protocol.CmdCloseChannel:
		name, ok := f.Arg(0)
		if !ok {
			return errorFrame(protocol.CodeBadRequest)
		}
		if !vh.closeChannel(name) {
			return errorFrame(protocol.CodeChannelNotFound)
		}
		logger.Info().Str("channel", name).Msg("channel closed")
		return protocol.NewFrame(protocol.CmdOK)

	case protocol.CmdBroadcast:
		channel, ok1 := f.Arg(0)
		payload, ok2 := f.Arg(1)
		if !ok1 || !ok2 {
			return errorFrame(protocol.CodeBadRequest)
		}
		if !vh.hasChannel(channel) {
			return errorFrame(protocol.CodeChannelNotFound)
		}
		if err := s.deliver(vh, payload); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Msg("broadcast not relayed")
		} else {
			logger.Debug().Str("channel", channel).Msg("broadcast relayed")
		}
		return protocol.NewFrame(protocol.CmdOK)

	case protocol.CmdAccessToken:
		userID, ok1 := f.Arg(0)
		pattern, ok2 := f.Arg(1)
		if !ok1 || !ok2 {
			return errorFrame(protocol.CodeBadRequest)
		}
		token, err := auth.IssueToken(vh.secret, userID, pattern)
		if err != nil {
			logger.Warn().Err(err).Msg("access token refused")
			if errors.Is(err, auth.ErrInvalidPattern) {
				return errorFrame(protocol.CodeBadRequest)
			}
			return errorFrame(protocol.CodeInternalError)
		}
		logger.Info().Str("user", userID).Msg("access token issued")
		return protocol.NewFrame(protocol.CmdAccessToken, token)

	default:
		logger.Warn().Msg("unsupported request")
		return errorFrame(protocol.CodeBadRequest)
	}
}

type readResult struct {
	frame protocol.Frame
	err   error
}

// handleWorker serves a dealer socket: registration, heartbeats both ways and
// eviction after the health timeout.
func (s *Server) handleWorker(ctx context.Context, conn net.Conn, r *bufio.Reader, vh *vhost, workerID string, first protocol.Frame, logger zerolog.Logger) {
	if first.Command() != protocol.CmdReady {
		logger.Warn().Str("command", first.Command()).Msg("worker must start with RD")
		reply(conn, errorFrame(protocol.CodeBadRequest))
		return
	}

	wc := pool.NewWorkerConn(workerID, conn)
	if old := vh.workers.Replace(wc.ID, wc); old != nil {
		logger.Info().Msg("worker reconnected, closing previous connection")
		_ = old.Conn.Close()
	}
	defer vh.workers.RemoveConn(wc)

	// Reads block without deadline from here on; eviction is timer driven
	_ = conn.SetReadDeadline(time.Time{})

	readCh := make(chan readResult)
	quit := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			f, err := protocol.ReadFrame(r)
			select {
			case readCh <- readResult{frame: f, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		close(quit)
		_ = conn.Close()
		<-readerDone
	}()

	heartbeatTicker := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	healthTimer := time.NewTimer(s.config.HealthCheckTimeout)
	defer healthTimer.Stop()

	sendTimeout := s.config.HeartbeatInterval + time.Second

	for {
		select {
		case <-ctx.Done():
			// Tell the worker to go away so it reconnects elsewhere
			_ = wc.Send(protocol.NewFrame(protocol.CmdQuit), sendTimeout)
			return

		case <-heartbeatTicker.C:
			if err := wc.Send(protocol.NewFrame(protocol.CmdHeartbeat), sendTimeout); err != nil {
				logger.Debug().Err(err).Msg("failed to send heartbeat to worker")
				vh.workers.MarkUnhealthy(wc.ID)
				return
			}

		case res := <-readCh:
			if res.err != nil {
				logger.Debug().Err(res.err).Msg("worker read failed")
				return
			}
			vh.workers.Touch(wc.ID)
			healthTimer.Reset(s.config.HealthCheckTimeout)

			switch res.frame.Command() {
			case protocol.CmdHeartbeat, protocol.CmdReady:
			case protocol.CmdQuit:
				logger.Info().Msg("worker quit")
				return
			default:
				logger.Debug().Str("command", res.frame.Command()).Msg("ignoring worker frame")
			}

		case <-healthTimer.C:
			logger.Warn().
				Dur("since_last_seen", time.Since(wc.LastSeen())).
				Dur("timeout", s.config.HealthCheckTimeout).
				Msg("worker heartbeat timeout, evicting")
			vh.workers.MarkUnhealthy(wc.ID)
			return
		}
	}
}
