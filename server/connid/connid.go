package connid

import "sync/atomic"

var counter atomic.Uint64

// Next returns a process-unique number tagging an accepted connection in logs
func Next() uint64 {
	return counter.Add(1)
}
