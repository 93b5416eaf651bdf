// Package events fans scan results out to live subscribers and to a redis stream.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"devfest/internal/camera"
)

// Kind tells a decoded payload apart from a scanner error.
type Kind string

const (
	KindScan  Kind = "scan"
	KindError Kind = "error"
)

// ScanEvent is one thing a scanner reported.
type ScanEvent struct {
	ScannerID string    `json:"scanner_id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Publisher receives every event the hub sees.
type Publisher interface {
	Publish(ctx context.Context, ev ScanEvent) error
}

const subscriberBuffer = 16

// Hub delivers events to subscribers of a scanner. A slow subscriber loses events rather
// than stalling the decode loop.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan ScanEvent]struct{}
	clock  clock.Clock
	sinks  []Publisher
	closed bool
}

// NewHub creates a hub that also forwards to sinks.
func NewHub(clk clock.Clock, sinks ...Publisher) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		subs:  make(map[string]map[chan ScanEvent]struct{}),
		clock: clk,
		sinks: sinks,
	}
}

// Subscribe returns a channel of events for scannerID. Call Unsubscribe when done.
func (h *Hub) Subscribe(scannerID string) <-chan ScanEvent {
	ch := make(chan ScanEvent, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	if h.subs[scannerID] == nil {
		h.subs[scannerID] = make(map[chan ScanEvent]struct{})
	}
	h.subs[scannerID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(scannerID string, sub <-chan ScanEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[scannerID] {
		if ch == sub {
			delete(h.subs[scannerID], ch)
			close(ch)
		}
	}
	if len(h.subs[scannerID]) == 0 {
		delete(h.subs, scannerID)
	}
}

// Subscribers counts live subscriptions of scannerID.
func (h *Hub) Subscribers(scannerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scannerID])
}

// Publish stamps ev if needed and delivers it.
func (h *Hub) Publish(ev ScanEvent) {
	if ev.At.IsZero() {
		ev.At = h.clock.Now()
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	for ch := range h.subs[ev.ScannerID] {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("scanner_id", ev.ScannerID).Msg("subscriber too slow, event dropped")
		}
	}
	h.mu.RUnlock()

	for _, sink := range h.sinks {
		if err := sink.Publish(context.Background(), ev); err != nil {
			log.Error().Err(err).Str("scanner_id", ev.ScannerID).Msg("failed to forward scan event")
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, subs := range h.subs {
		for ch := range subs {
			close(ch)
		}
		delete(h.subs, id)
	}
}

// Handler adapts the hub to a camera scan handler for scannerID.
func (h *Hub) Handler(scannerID string) camera.ScanHandler {
	return camera.ScanHandlerFuncs{
		Scan: func(text string) {
			h.Publish(ScanEvent{ScannerID: scannerID, Kind: KindScan, Text: text})
		},
		Error: func(message string) {
			h.Publish(ScanEvent{ScannerID: scannerID, Kind: KindError, Text: message})
		},
	}
}
