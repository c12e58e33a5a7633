package pool

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/rs/zerolog"
)

// WorkerPool tracks the workers registered on one vhost
type WorkerPool struct {
	mu       sync.RWMutex
	workers  map[string]*WorkerConn // worker id -> connection
	balancer LoadBalancer
	logger   zerolog.Logger

	// Cached worker slice to avoid allocation on Select
	// Using atomic.Pointer for lock-free reads on the hot path
	cachedWorkers atomic.Pointer[[]*WorkerConn]
}

// WorkerConn represents a registered worker
type WorkerConn struct {
	ID           string
	Conn         net.Conn
	RegisteredAt time.Time

	// Delivery tracking
	Deliveries atomic.Uint64

	lastSeen atomic.Int64
	healthy  atomic.Bool
	writeMu  sync.Mutex
}

// NewWorkerConn wraps a connection that just sent RD.
func NewWorkerConn(id string, conn net.Conn) *WorkerConn {
	now := time.Now()
	w := &WorkerConn{
		ID:           id,
		Conn:         conn,
		RegisteredAt: now,
	}
	w.lastSeen.Store(now.UnixNano())
	return w
}

// Send writes one frame to the worker. Safe for concurrent use.
func (w *WorkerConn) Send(f protocol.Frame, timeout time.Duration) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.Conn == nil {
		return ErrNotConnected
	}
	if timeout > 0 {
		_ = w.Conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return protocol.WriteFrame(w.Conn, f)
}

// Deliver sends an event payload as TR and counts it.
func (w *WorkerConn) Deliver(payload string, timeout time.Duration) error {
	if err := w.Send(protocol.NewFrame(protocol.CmdTrigger, payload), timeout); err != nil {
		return err
	}
	w.Deliveries.Add(1)
	return nil
}

// LastSeen returns when the worker last sent a frame.
func (w *WorkerConn) LastSeen() time.Time {
	return time.Unix(0, w.lastSeen.Load())
}

// Healthy reports whether the worker may receive deliveries.
func (w *WorkerConn) Healthy() bool {
	return w.healthy.Load()
}

// New creates a new worker pool
func New(vhost string, balancer LoadBalancer, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		workers:  make(map[string]*WorkerConn),
		balancer: balancer,
		logger:   logger.With().Str("vhost", vhost).Logger(),
	}
}

// Replace registers a worker, returning the connection it displaced, if any.
func (p *WorkerPool) Replace(id string, conn *WorkerConn) *WorkerConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.workers[id]
	if old != nil {
		old.healthy.Store(false)
	}
	p.insert(id, conn)
	return old
}

func (p *WorkerPool) insert(id string, conn *WorkerConn) {
	conn.healthy.Store(true)
	p.workers[id] = conn

	// Invalidate cache by setting to nil
	p.cachedWorkers.Store(nil)

	p.logger.Info().Str("worker_id", id).Msg("worker added to pool")
}

// RemoveConn removes conn only if it is still the registered connection for
// its ID. It reports whether anything was removed.
func (p *WorkerPool) RemoveConn(conn *WorkerConn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, exists := p.workers[conn.ID]; exists && current == conn {
		p.delete(conn.ID, conn)
		return true
	}
	return false
}

func (p *WorkerPool) delete(id string, conn *WorkerConn) {
	conn.healthy.Store(false)
	delete(p.workers, id)

	// Invalidate cache by setting to nil
	p.cachedWorkers.Store(nil)

	p.logger.Info().
		Str("worker_id", id).
		Uint64("deliveries", conn.Deliveries.Load()).
		Dur("registered_for", time.Since(conn.RegisteredAt)).
		Msg("worker removed from pool")
}

// Select chooses a worker using the load balancer
func (p *WorkerPool) Select() (*WorkerConn, error) {
	// Fast path: use cached slice if available (lock-free read)
	workersPtr := p.cachedWorkers.Load()
	if workersPtr != nil {
		workers := *workersPtr
		if len(workers) == 0 {
			return nil, ErrNoWorkersAvailable
		}
		return p.balancer.Select(workers)
	}

	// Slow path: rebuild cache (rare)
	workers := p.rebuildWorkerSlice()
	if len(workers) == 0 {
		return nil, ErrNoWorkersAvailable
	}

	return p.balancer.Select(workers)
}

// rebuildWorkerSlice rebuilds the cached worker slice from the map
func (p *WorkerPool) rebuildWorkerSlice() []*WorkerConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have rebuilt while we waited for the lock
	workersPtr := p.cachedWorkers.Load()
	if workersPtr != nil {
		return *workersPtr
	}

	workers := make([]*WorkerConn, 0, len(p.workers))
	for _, conn := range p.workers {
		workers = append(workers, conn)
	}

	p.cachedWorkers.Store(&workers)

	return workers
}

// Count returns the number of workers in the pool
func (p *WorkerPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Touch records activity from a worker
func (p *WorkerPool) Touch(id string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if conn, exists := p.workers[id]; exists {
		conn.lastSeen.Store(time.Now().UnixNano())
	}
}

// MarkUnhealthy excludes a worker from selection without removing it
func (p *WorkerPool) MarkUnhealthy(id string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if conn, exists := p.workers[id]; exists {
		conn.healthy.Store(false)
		p.logger.Warn().Str("worker_id", id).Msg("worker marked unhealthy")
	}
}

// Errors
var (
	ErrNoWorkersAvailable = errors.New("no workers available in pool")
	ErrNoHealthyWorkers   = errors.New("no healthy workers available")
	ErrNotConnected       = errors.New("worker not connected")
)
