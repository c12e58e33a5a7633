package protocol

import (
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event payloads are JSON objects whose first key is the event name and whose
// value is the event data: {"comment_added":{"content":"hi"}}.

// EncodeEvent serializes data under the event name.
func EncodeEvent(event string, data interface{}) (string, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField(event)
	stream.WriteVal(data)
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return "", fmt.Errorf("marshal event %q: %w", event, stream.Error)
	}
	return string(stream.Buffer()), nil
}

// EncodeRawEvent wraps already-serialized JSON data under the event name.
func EncodeRawEvent(event string, raw string) (string, error) {
	if !json.Valid([]byte(raw)) {
		return "", fmt.Errorf("%w: event %q data is not valid JSON", ErrEncoding, event)
	}
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField(event)
	stream.WriteRaw(raw)
	stream.WriteObjectEnd()
	return string(stream.Buffer()), nil
}

// DecodeEvent extracts the event name and the raw JSON data from a payload.
// Keys after the first one are ignored.
func DecodeEvent(payload string) (event string, data string, err error) {
	iter := json.BorrowIterator([]byte(payload))
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return "", "", fmt.Errorf("%w: event payload is not a JSON object", ErrProtocol)
	}
	event = iter.ReadObject()
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return "", "", fmt.Errorf("%w: read event name: %w", ErrProtocol, iter.Error)
	}
	if event == "" {
		return "", "", fmt.Errorf("%w: event payload has no event", ErrProtocol)
	}
	raw := iter.SkipAndReturnBytes()
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return "", "", fmt.Errorf("%w: read event %q data: %w", ErrProtocol, event, iter.Error)
	}
	if len(raw) == 0 {
		return "", "", fmt.Errorf("%w: event %q has no data", ErrProtocol, event)
	}
	return event, string(raw), nil
}

// DecodeData unmarshals raw event data into v.
func DecodeData(data string, v interface{}) error {
	if err := json.UnmarshalFromString(data, v); err != nil {
		return fmt.Errorf("unmarshal event data: %w", err)
	}
	return nil
}
