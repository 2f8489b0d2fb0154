package dataflow

import (
	"runtime"
	"sync/atomic"
)

// readyQueue is a bounded multi-producer multi-consumer lock-free ring of
// runnable tasks, after Dmitry Vyukov's algorithm with per-slot sequence
// numbers. Workers take from it without holding the store lock.
type readyQueue[T any] struct {
	_    [64]byte
	mask uint64
	_    [64]byte
	head atomic.Uint64
	_    [64]byte
	tail atomic.Uint64
	_    [64]byte
	ring []slot[T]
}

type slot[T any] struct {
	seq atomic.Uint64
	_   [56]byte
	val T
}

// newReadyQueue returns a queue holding at least capacity items; the
// capacity is rounded up to a power of two.
func newReadyQueue[T any](capacity uint64) *readyQueue[T] {
	size := uint64(2)
	for size < capacity {
		size <<= 1
	}

	q := &readyQueue[T]{mask: size - 1, ring: make([]slot[T], size)}
	for i := range q.ring {
		q.ring[i].seq.Store(uint64(i))
	}

	return q
}

// push appends v; it reports false when the ring is full.
func (q *readyQueue[T]) push(v T) bool {
	for {
		pos := q.tail.Load()
		s := &q.ring[pos&q.mask]

		switch d := int64(s.seq.Load()) - int64(pos); {
		case d == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)

				return true
			}
		case d < 0:
			return false
		default:
			runtime.Gosched()
		}
	}
}

// pop removes the oldest item; it reports false when the ring is empty.
func (q *readyQueue[T]) pop() (T, bool) {
	var zero T

	for {
		pos := q.head.Load()
		s := &q.ring[pos&q.mask]

		switch d := int64(s.seq.Load()) - int64(pos+1); {
		case d == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v := s.val
				s.val = zero
				s.seq.Store(pos + q.mask + 1)

				return v, true
			}
		case d < 0:
			return zero, false
		default:
			runtime.Gosched()
		}
	}
}

// capacity is the number of slots in the ring.
func (q *readyQueue[T]) capacity() int { return len(q.ring) }
