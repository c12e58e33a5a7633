package client

import (
	"github.com/Mmx233/Kosmonaut/protocol"
)

// Handler receives what a Worker reads from the backend. Calls are made on
// the goroutine running Worker.Run, one at a time.
type Handler interface {
	// OnMessage is called for every event relayed by the backend.
	OnMessage(msg *Message)
	// OnError is called for every error frame. Code 402 stops the worker
	// right after this call returns.
	OnError(err *protocol.ServerError)
	// OnException is called with panics recovered from the other callbacks
	// and with event payloads that could not be decoded.
	OnException(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	MessageFunc   func(msg *Message)
	ErrorFunc     func(err *protocol.ServerError)
	ExceptionFunc func(err error)
}

func (h HandlerFuncs) OnMessage(msg *Message) {
	if h.MessageFunc != nil {
		h.MessageFunc(msg)
	}
}

func (h HandlerFuncs) OnError(err *protocol.ServerError) {
	if h.ErrorFunc != nil {
		h.ErrorFunc(err)
	}
}

func (h HandlerFuncs) OnException(err error) {
	if h.ExceptionFunc != nil {
		h.ExceptionFunc(err)
	}
}
