package pool

import (
	"fmt"
	"sync/atomic"
)

// LoadBalancer selects the worker receiving a relayed event
type LoadBalancer interface {
	// Select chooses a worker from the pool
	Select(workers []*WorkerConn) (*WorkerConn, error)

	// Name returns the balancer name
	Name() string
}

// NewBalancer returns the balancer registered under name.
func NewBalancer(name string) (LoadBalancer, error) {
	switch name {
	case "", "round-robin":
		return NewRoundRobinBalancer(), nil
	case "least-deliveries":
		return NewLeastDeliveriesBalancer(), nil
	default:
		return nil, fmt.Errorf("unknown load balancer %q", name)
	}
}

// healthyWorkers filters out unhealthy workers, reusing the input slice when
// all of them are healthy.
func healthyWorkers(workers []*WorkerConn) []*WorkerConn {
	allHealthy := true
	for _, w := range workers {
		if !w.Healthy() {
			allHealthy = false
			break
		}
	}
	if allHealthy {
		return workers
	}

	healthy := make([]*WorkerConn, 0, len(workers))
	for _, w := range workers {
		if w.Healthy() {
			healthy = append(healthy, w)
		}
	}
	return healthy
}

// RoundRobinBalancer implements round-robin load balancing
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

// NewRoundRobinBalancer creates a new round-robin balancer
func NewRoundRobinBalancer() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

// Select chooses a worker using round-robin algorithm with O(1) complexity
func (r *RoundRobinBalancer) Select(workers []*WorkerConn) (*WorkerConn, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkersAvailable
	}

	healthy := healthyWorkers(workers)
	if len(healthy) == 0 {
		return nil, ErrNoHealthyWorkers
	}

	idx := r.counter.Add(1) % uint64(len(healthy))
	return healthy[idx], nil
}

// Name returns the balancer name
func (r *RoundRobinBalancer) Name() string {
	return "round-robin"
}

// LeastDeliveriesBalancer picks the worker that received the fewest events
type LeastDeliveriesBalancer struct{}

// NewLeastDeliveriesBalancer creates a new least-deliveries balancer
func NewLeastDeliveriesBalancer() *LeastDeliveriesBalancer {
	return &LeastDeliveriesBalancer{}
}

// Select chooses the healthy worker with the fewest deliveries
func (l *LeastDeliveriesBalancer) Select(workers []*WorkerConn) (*WorkerConn, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkersAvailable
	}

	healthy := healthyWorkers(workers)
	if len(healthy) == 0 {
		return nil, ErrNoHealthyWorkers
	}

	selected := healthy[0]
	least := selected.Deliveries.Load()
	for _, w := range healthy[1:] {
		if n := w.Deliveries.Load(); n < least {
			least = n
			selected = w
		}
	}

	return selected, nil
}

// Name returns the balancer name
func (l *LeastDeliveriesBalancer) Name() string {
	return "least-deliveries"
}
