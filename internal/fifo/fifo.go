// Package fifo implements the 8-entry inter-core FIFO: the only
// synchronising channel between core 0 and core 1. It is backed by a Go
// channel for the blocking operations and a
// small mutex-guarded ring for Peek, since a channel alone cannot be
// inspected without consuming an element.
package fifo

import (
	"context"
	"errors"
	"sync"
)

// Depth is the hardware FIFO's fixed capacity.
const Depth = 8

// ErrFull is returned by the non-blocking, timed push when the FIFO never
// drains within the deadline.
var ErrFull = errors.New("fifo: full")

// ErrEmpty is returned by Peek when there is nothing queued.
var ErrEmpty = errors.New("fifo: empty")

// FIFO is the bounded inter-core queue. Zero value is not usable; use New.
type FIFO struct {
	ch   chan uint32
	mu   sync.Mutex
	ring []uint32
}

// New returns an empty 8-entry FIFO.
func New() *FIFO {
	return &FIFO{ch: make(chan uint32, Depth)}
}

// Push blocks until there is room for msg.
func (f *FIFO) Push(ctx context.Context, msg uint32) error {
	select {
	case f.ch <- msg:
		f.record(msg)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush attempts to enqueue msg, blocking at most until ctx is done.
func (f *FIFO) TryPush(ctx context.Context, msg uint32) error {
	select {
	case f.ch <- msg:
		f.record(msg)
		return nil
	case <-ctx.Done():
		return ErrFull
	}
}

// Pop blocks until a message is available.
func (f *FIFO) Pop(ctx context.Context) (uint32, error) {
	select {
	case msg := <-f.ch:
		f.unrecord()
		return msg, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Peek returns the next message without consuming it, or ErrEmpty.
func (f *FIFO) Peek() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ring) == 0 {
		return 0, ErrEmpty
	}
	return f.ring[0], nil
}

// Len reports the number of queued messages.
func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ring)
}

func (f *FIFO) record(msg uint32) {
	f.mu.Lock()
	f.ring = append(f.ring, msg)
	f.mu.Unlock()
}

func (f *FIFO) unrecord() {
	f.mu.Lock()
	if len(f.ring) > 0 {
		f.ring = f.ring[1:]
	}
	f.mu.Unlock()
}
