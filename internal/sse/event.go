// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sse formats server-sent events and fans them out to connected
// dashboard clients.
package sse

import "strings"

// Heartbeat is an SSE comment that keeps idle connections open.
const Heartbeat = ": heartbeat\n\n"

// Event is a single server-sent event. Empty ID and Name are omitted.
type Event struct {
	ID   string
	Name string
	Data string
}

// String renders the event in text/event-stream framing. Multi-line data
// is split over several data fields.
func (e Event) String() string {
	var sb strings.Builder
	if e.ID != "" {
		sb.WriteString("id: " + e.ID + "\n")
	}
	if e.Name != "" {
		sb.WriteString("event: " + e.Name + "\n")
	}
	for line := range strings.SplitSeq(e.Data, "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteByte('\n')
	return sb.String()
}
