// Package ring holds the byte ring the GPS producer writes into and the
// tracker the parser task uses to find newly arrived bytes.
//
// The producer never waits for the consumer. It overwrites the ring
// continuously and only publishes its write position, so a consumer that
// falls more than one capacity behind silently loses data.
package ring

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a fixed-capacity byte ring with a single producer.
type Buffer struct {
	data []byte
	wpos atomic.Uint64 // always < len(data)

	// notify is a single-slot wake signal. Multiple writes between two
	// consumer wakeups coalesce into one pending signal.
	notify chan struct{}
}

func New(capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("ring: capacity must be >= 2, got %d", capacity)
	}
	return &Buffer{
		data:   make([]byte, capacity),
		notify: make(chan struct{}, 1),
	}, nil
}

func (b *Buffer) Cap() int { return len(b.data) }

// WritePosition returns the offset the producer will write next.
func (b *Buffer) WritePosition() int { return int(b.wpos.Load()) }

// Segment returns the contiguous region [off, off+n) without copying.
// The region must not wrap; callers split at the capacity boundary.
func (b *Buffer) Segment(off, n int) []byte {
	if off < 0 || n < 0 || off+n > len(b.data) {
		panic(fmt.Sprintf("ring: segment [%d,%d) out of range (cap %d)", off, off+n, len(b.data)))
	}
	return b.data[off : off+n : off+n]
}

// Notify returns the channel signalled after every Write.
func (b *Buffer) Notify() <-chan struct{} { return b.notify }

// Write copies p into the ring at the current write position, wrapping at
// the end, then publishes the new position and raises the wake signal.
// Write never blocks. Only one goroutine may call Write.
func (b *Buffer) Write(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	total := len(p)
	c := len(b.data)
	w := int(b.wpos.Load())
	// Only the last capacity bytes can survive anyway.
	if len(p) > c {
		w = (w + len(p) - c) % c
		p = p[len(p)-c:]
	}
	n := copy(b.data[w:], p)
	if n < len(p) {
		copy(b.data, p[n:])
	}
	b.wpos.Store(uint64((w + len(p)) % c))

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return total
}
