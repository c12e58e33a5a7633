package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Error codes
const (
	CodeBadRequest         = 400
	CodeUnauthorized       = 402
	CodeForbidden          = 403
	CodeInvalidChannelName = 451
	CodeChannelNotFound    = 454
	CodeInternalError      = 597
	CodeEndOfStream        = 598
)

// UnknownCategory is used for codes missing from the catalog.
const UnknownCategory = "unknown error"

var categories = map[int]string{
	CodeBadRequest:         "bad request",
	CodeUnauthorized:       "unauthorized",
	CodeForbidden:          "forbidden",
	CodeInvalidChannelName: "invalid channel name",
	CodeChannelNotFound:    "channel not found",
	CodeInternalError:      "internal error",
	CodeEndOfStream:        "end-of-stream error",
}

// ErrUnauthorized matches any ServerError carrying code 402.
var ErrUnauthorized = errors.New("unauthorized")

// ServerError is an in-band error reported by the backend with an ER frame.
type ServerError struct {
	Code     int
	Category string
}

// NewServerError resolves code against the catalog. It never fails.
func NewServerError(code int) *ServerError {
	return &ServerError{
		Code:     code,
		Category: Category(code),
	}
}

// ParseServerError builds a ServerError from the textual code of an ER frame.
// Missing or malformed codes resolve to an internal error.
func ParseServerError(code string, ok bool) *ServerError {
	if !ok {
		return NewServerError(CodeInternalError)
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return NewServerError(CodeInternalError)
	}
	return NewServerError(n)
}

// Category returns the human-readable category for code.
func Category(code int) string {
	if c, ok := categories[code]; ok {
		return c
	}
	return UnknownCategory
}

// Known reports whether code is part of the catalog.
func Known(code int) bool {
	_, ok := categories[code]
	return ok
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%d - %s", e.Code, e.Category)
}

// Is lets errors.Is(err, ErrUnauthorized) match code 402.
func (e *ServerError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == CodeUnauthorized
}

// Unauthorized reports whether the error must stop a worker.
func (e *ServerError) Unauthorized() bool {
	return e.Code == CodeUnauthorized
}
