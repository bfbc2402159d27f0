// Tencent is pleased to support the open source community by making trpc-mcp-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-mcp-go is licensed under the Apache License Version 2.0.

package transport

import (
	"bufio"
	"io"
	"strings"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 4 << 20

// Event is one server-sent event. Event defaults to "message".
type Event struct {
	ID    string
	Event string
	Data  string
}

// EventReader parses a text/event-stream body.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader wraps r.
func NewEventReader(r io.Reader) *EventReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &EventReader{scanner: s}
}

// Next returns the next dispatched event. It returns io.EOF when the stream ends cleanly
// and io.ErrUnexpectedEOF when it ends in the middle of an event.
func (r *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")
		if line == "" {
			if !pending {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			if ev.Event == "" {
				ev.Event = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		default:
			continue
		}
		pending = true
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if pending {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}
