package server

import (
	"regexp"
	"sort"
	"sync"

	"github.com/Mmx233/Kosmonaut/server/pool"
)

// channelName matches the channel names the broker accepts
var channelName = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

// vhost is an isolated set of channels with its own worker pool
type vhost struct {
	path   string
	secret string

	mu       sync.RWMutex
	channels map[string]struct{}

	workers *pool.WorkerPool
}

func newVhost(path, secret string, channels []string, workers *pool.WorkerPool) *vhost {
	v := &vhost{
		path:     path,
		secret:   secret,
		channels: make(map[string]struct{}, len(channels)),
		workers:  workers,
	}
	for _, ch := range channels {
		v.channels[ch] = struct{}{}
	}
	return v
}

// openChannel opens name. Opening an open channel is not an error.
func (v *vhost) openChannel(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.channels[name] = struct{}{}
}

// closeChannel reports false when name was not open.
func (v *vhost) closeChannel(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.channels[name]; !ok {
		return false
	}
	delete(v.channels, name)
	return true
}

func (v *vhost) hasChannel(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.channels[name]
	return ok
}

func (v *vhost) channelList() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	list := make([]string, 0, len(v.channels))
	for name := range v.channels {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
