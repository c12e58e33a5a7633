package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/rs/zerolog"
)

// WorkerState represents the lifecycle state of a Worker
type WorkerState int32

const (
	WorkerDisconnected WorkerState = iota
	WorkerConnecting
	WorkerConnected
	WorkerStopped
)

// String returns a string representation of the worker state
func (s WorkerState) String() string {
	switch s {
	case WorkerDisconnected:
		return "disconnected"
	case WorkerConnecting:
		return "connecting"
	case WorkerConnected:
		return "connected"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var errQuit = errors.New("quit requested by backend")

// Worker keeps a long-lived dealer connection to the backend, answers
// heartbeats and hands relayed events to its Handler. It reconnects after
// any transport or protocol failure.
type Worker struct {
	config   *config.Worker
	identity string
	handler  Handler

	// Owned by the goroutine inside Run
	conn          *Conn
	stopInterrupt func() bool
	hbDeadline    time.Time

	state   atomic.Int32
	running atomic.Bool

	replyOpts []Option
	metrics   *Metrics
	logger    zerolog.Logger
}

// NewWorker creates a worker from a configuration. Defaults are applied and
// the endpoint URI is parsed.
func NewWorker(cfg *config.Worker, h Handler, opts ...Option) (*Worker, error) {
	if h == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker configuration: %w", err)
	}

	o := buildOptions("worker", opts)
	w := &Worker{
		config:    cfg,
		identity:  newIdentity(protocol.SocketTypeDealer, cfg.Endpoint),
		handler:   h,
		replyOpts: opts,
		metrics:   o.metrics,
		logger: o.logger.With().
			Str("endpoint", cfg.Endpoint.String()).
			Logger(),
	}
	w.setState(WorkerDisconnected)
	return w, nil
}

// Identity returns the identity field sent with RD and QT.
func (w *Worker) Identity() string {
	return w.identity
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
	w.metrics.setWorkerState(s)
}

// Run connects and serves until ctx is cancelled, in which case it returns
// nil after telling the backend it quits. It returns an error satisfying
// errors.Is(err, protocol.ErrUnauthorized) when the backend rejects the
// credentials. Only one Run may be active at a time.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.logger.Info().Msg("worker started")
	firstAttempt := true

	for {
		if ctx.Err() != nil {
			w.disconnect()
			w.setState(WorkerStopped)
			w.logger.Info().Msg("worker stopped")
			return nil
		}

		if w.conn == nil {
			if !firstAttempt && !w.waitReconnect(ctx) {
				continue
			}
			firstAttempt = false

			if err := w.connect(ctx); err != nil {
				w.logger.Warn().Err(err).Dur("retry_in", w.config.ReconnectDelay).Msg("connect failed")
				continue
			}
		}

		f, err := w.conn.ReadFrame(w.config.ReadTimeout())
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted by cancellation, quit at the top of the loop
				continue
			}
			w.logger.Warn().Err(err).Msg("read failed, reconnecting")
			w.closeConn()
			continue
		}

		if err := w.dispatch(f); err != nil {
			if errors.Is(err, protocol.ErrUnauthorized) {
				w.disconnect()
				w.setState(WorkerStopped)
				w.logger.Error().Err(err).Msg("credentials rejected, worker stopped")
				return fmt.Errorf("worker: %w", err)
			}
			w.logger.Info().Msg("backend requested quit, reconnecting")
			w.disconnect()
			continue
		}

		if time.Now().After(w.hbDeadline) {
			w.sendHeartbeat()
		}
	}
}

// waitReconnect waits the reconnect delay. It reports false when ctx ended
// the wait.
func (w *Worker) waitReconnect(ctx context.Context) bool {
	w.metrics.reconnect()
	if w.config.ReconnectDelay <= 0 {
		return true
	}

	timer := time.NewTimer(w.config.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect dials the endpoint and announces readiness.
func (w *Worker) connect(ctx context.Context) error {
	w.setState(WorkerConnecting)

	conn, err := Dial(ctx, w.config.Endpoint.Address(), w.config.RequestTimeout, w.logger)
	if err != nil {
		w.setState(WorkerDisconnected)
		return err
	}
	if err := conn.WriteFrame(w.identity, protocol.NewFrame(protocol.CmdReady)); err != nil {
		conn.Close()
		w.setState(WorkerDisconnected)
		return fmt.Errorf("send ready: %w", err)
	}

	// A cancelled ctx interrupts a pending read so Run notices it promptly
	w.stopInterrupt = context.AfterFunc(ctx, conn.interruptRead)

	w.conn = conn
	w.hbDeadline = time.Now().Add(w.config.HeartbeatInterval)
	w.setState(WorkerConnected)
	w.logger.Info().Msg("connected to backend")
	return nil
}

// sendHeartbeat sends HB and moves the deadline. A failed send closes the
// connection so the next iteration reconnects.
func (w *Worker) sendHeartbeat() {
	if err := w.conn.Send(protocol.NewFrame(protocol.CmdHeartbeat)); err != nil {
		w.logger.Warn().Err(err).Msg("heartbeat failed, reconnecting")
		w.closeConn()
		return
	}
	w.metrics.heartbeat()
	w.hbDeadline = time.Now().Add(w.config.HeartbeatInterval)
}

// disconnect sends QT on a best-effort basis and closes the connection.
func (w *Worker) disconnect() {
	if w.conn != nil {
		if err := w.conn.WriteFrame(w.identity, protocol.NewFrame(protocol.CmdQuit)); err != nil {
			w.logger.Debug().Err(err).Msg("send quit failed")
		}
	}
	w.closeConn()
}

func (w *Worker) closeConn() {
	if w.conn != nil {
		w.stopInterrupt()
		w.conn.Close()
		w.conn = nil
	}
	w.setState(WorkerDisconnected)
}

// dispatch handles one received frame. It returns errQuit when the backend
// asks to disconnect and a *protocol.ServerError for fatal errors.
func (w *Worker) dispatch(f protocol.Frame) error {
	cmd := f.Command()
	w.metrics.frameReceived(cmd)

	switch cmd {
	case protocol.CmdHeartbeat:
	case protocol.CmdQuit:
		return errQuit
	case protocol.CmdTrigger:
		payload, _ := f.Arg(0)
		event, data, err := protocol.DecodeEvent(payload)
		if err != nil {
			w.safeCall(func() { w.handler.OnException(fmt.Errorf("decode trigger: %w", err)) })
			return nil
		}
		msg := &Message{
			Event:    event,
			Data:     data,
			endpoint: w.config.Endpoint,
			timeout:  w.config.RequestTimeout,
			opts:     w.replyOpts,
		}
		w.safeCall(func() { w.handler.OnMessage(msg) })
	case protocol.CmdError:
		serr := protocol.ParseServerError(f.Arg(0))
		if !protocol.Known(serr.Code) {
			w.logger.Warn().Int("code", serr.Code).Msg("error code outside the catalog")
		}
		w.safeCall(func() { w.handler.OnError(serr) })
		if serr.Unauthorized() {
			return serr
		}
	default:
		w.logger.Debug().Str("command", cmd).Msg("ignoring unknown command")
	}
	return nil
}

// safeCall runs a handler callback, reporting a panic through OnException.
func (w *Worker) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.handlerPanic()
			err := fmt.Errorf("handler panic: %v", r)
			w.logger.Error().Err(err).Msg("recovered handler panic")
			w.reportException(err)
		}
	}()
	fn()
}

func (w *Worker) reportException(err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("exception handler panicked")
		}
	}()
	w.handler.OnException(err)
}
