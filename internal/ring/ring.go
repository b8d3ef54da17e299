// Package ring implements the single-producer/single-consumer lock-free
// ring buffer that hands wire.Record values from the capture stage to
// the processor stage.
package ring

import (
	"sync/atomic"

	"tickcapture/internal/wire"
)

// cacheLinePad is the size of a typical cache line, used to keep the
// producer and consumer indices from sharing one.
const cacheLinePad = 64

// paddedIndex holds one atomic index on its own cache line so the
// producer's and consumer's indices never false-share.
type paddedIndex struct {
	value atomic.Uint64
	_     [cacheLinePad - 8]byte
}

// Buffer is a bounded SPSC FIFO of wire.Record values. Exactly one
// goroutine may call Push, and exactly one (possibly different)
// goroutine may call Pop/PopBulk; concurrent use by more than one
// producer or more than one consumer is undefined, per contract.
//
// Capacity is always a power of two; one slot is kept empty to
// distinguish "full" from "empty" without a separate counter.
type Buffer struct {
	slots []wire.Record
	mask  uint64

	writeIdx paddedIndex
	readIdx  paddedIndex

	totalPushed   atomic.Uint64
	totalPopped   atomic.Uint64
	pushFailures  atomic.Uint64
}

// New creates a Buffer whose capacity is the next power of two >= size.
// The minimum capacity is 2 slots, of which 1 is usable (one slot is
// always kept empty).
func New(size int) *Buffer {
	capacity := nextPowerOfTwo(size)
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{
		slots: make([]wire.Record, capacity),
		mask:  uint64(capacity) - 1,
	}
}

func nextPowerOfTwo(v int) int {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

// Push attempts to enqueue item. It returns false, without mutating any
// slot, if the buffer is full.
func (b *Buffer) Push(item *wire.Record) bool {
	current := b.writeIdx.value.Load()
	next := (current + 1) & b.mask

	if next == b.readIdx.value.Load() {
		b.pushFailures.Add(1)
		return false
	}

	b.slots[current] = *item
	b.writeIdx.value.Store(next)
	b.totalPushed.Add(1)
	return true
}

// Pop attempts to dequeue one item. ok is false if the buffer is empty.
func (b *Buffer) Pop() (item wire.Record, ok bool) {
	current := b.readIdx.value.Load()
	if current == b.writeIdx.value.Load() {
		return wire.Record{}, false
	}

	item = b.slots[current]
	b.readIdx.value.Store((current + 1) & b.mask)
	b.totalPopped.Add(1)
	return item, true
}

// PopBulk drains up to len(out) items into out, stopping at the first
// empty observation, and returns the count actually popped. Order is
// preserved.
func (b *Buffer) PopBulk(out []wire.Record) int {
	n := 0
	for n < len(out) {
		item, ok := b.Pop()
		if !ok {
			break
		}
		out[n] = item
		n++
	}
	return n
}

// Size returns the number of items currently queued. Because producer
// and consumer indices are independent atomics, this is a snapshot and
// may be stale by the time the caller observes it.
func (b *Buffer) Size() int {
	read := b.readIdx.value.Load()
	write := b.writeIdx.value.Load()
	if write >= read {
		return int(write - read)
	}
	return int(uint64(len(b.slots)) - (read - write))
}

// Capacity returns the total number of slots, including the one kept
// permanently empty.
func (b *Buffer) Capacity() int { return len(b.slots) }

// TotalPushed returns the lifetime count of successful pushes.
func (b *Buffer) TotalPushed() uint64 { return b.totalPushed.Load() }

// TotalPopped returns the lifetime count of successful pops.
func (b *Buffer) TotalPopped() uint64 { return b.totalPopped.Load() }

// PushFailures returns the lifetime count of pushes rejected because
// the buffer was full.
func (b *Buffer) PushFailures() uint64 { return b.pushFailures.Load() }
