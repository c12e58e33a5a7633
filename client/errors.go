package client

import "errors"

var (
	ErrConnect            = errors.New("connect error")
	ErrWrite              = errors.New("write error")
	ErrReadTimeout        = errors.New("read timeout")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrNotImplemented     = errors.New("not implemented")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrAlreadyRunning     = errors.New("worker already running")
)
