// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sse

import (
	"sync"

	"github.com/samber/lo"
)

// clientBuffer bounds the backlog per client; slow readers miss events.
const clientBuffer = 16

// Hub tracks live event streams per subject. A subject may hold several
// streams, one per open dashboard.
type Hub struct {
	clients map[string][]chan string
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string][]chan string)}
}

// Register opens a stream for subject.
func (h *Hub) Register(subject string) chan string {
	ch := make(chan string, clientBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[subject] = append(h.clients[subject], ch)

	return ch
}

// Unregister closes ch and forgets it.
func (h *Hub) Unregister(subject string, ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	remaining := lo.Without(h.clients[subject], ch)
	if len(remaining) == 0 {
		delete(h.clients, subject)
	} else {
		h.clients[subject] = remaining
	}

	close(ch)
}

// SendTo delivers message to every stream of subject without blocking.
func (h *Hub) SendTo(subject, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients[subject] {
		send(ch, message)
	}
}

// Broadcast delivers message to every stream without blocking.
func (h *Hub) Broadcast(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, chans := range h.clients {
		for _, ch := range chans {
			send(ch, message)
		}
	}
}

// ClientCount returns the number of open streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.SumBy(lo.Values(h.clients), func(chans []chan string) int {
		return len(chans)
	})
}

// SubjectCount returns the number of subjects with open streams.
func (h *Hub) SubjectCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func send(ch chan string, message string) {
	select {
	case ch <- message:
	default:
	}
}
