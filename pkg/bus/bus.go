// Package bus is the latency-sensitive broadcast path for panic
// open/close events. It exists because the storage round trip is the
// slow way to learn about a panic: the context that flips the flag also
// pushes the event to every peer directly, and the store remains the
// authoritative fallback for any context that missed the message.
//
// Delivery is best effort: sends never block, a full subscriber simply
// drops the message, and the syncer's reconciliation against the store
// repairs anything lost.
package bus

import "sync"

// TypeSyncPanicModal is the only message type the core broadcasts.
const TypeSyncPanicModal = "SYNC_PANIC_MODAL"

// Message is the broadcast payload.
type Message struct {
	Type string `json:"type"`
	Open bool   `json:"open"`
}

// SyncPanicModal builds the panic broadcast message.
func SyncPanicModal(open bool) Message {
	return Message{Type: TypeSyncPanicModal, Open: open}
}

// Bus fans messages out to subscriber channels.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Message)}
}

// Subscribe registers a buffered receive channel and returns it with its
// cancel function. Receivers are expected to register before any other
// startup work so an early broadcast is never missed.
func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// A closed bus hands out a drained channel; receiving from it
		// blocks forever, which the subscriber's own context unwinds.
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the message to every subscriber without blocking.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close drops all subscribers. Publishing to a closed bus is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.subs = make(map[int]chan Message)
}
