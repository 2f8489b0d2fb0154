package dataflow

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestReadyQueueBasic(t *testing.T) {
	q := newReadyQueue[int](3)
	if q.capacity() != 4 {
		t.Fatalf("capacity: want 4, got %d", q.capacity())
	}

	for i := 1; i <= 4; i++ {
		if !q.push(i) {
			t.Fatalf("push %d failed", i)
		}
	}

	if q.push(5) {
		t.Fatal("push into a full queue should fail")
	}

	for want := 1; want <= 4; want++ {
		if v, ok := q.pop(); !ok || v != want {
			t.Fatalf("pop: want %d, got %d (ok=%v)", want, v, ok)
		}
	}

	if _, ok := q.pop(); ok {
		t.Fatal("expected empty")
	}
}

func TestReadyQueueConcurrent(t *testing.T) {
	q := newReadyQueue[int](1024)

	const (
		producers = 4
		consumers = 4
		perProd   = 5000
	)

	var (
		consumed atomic.Int64
		sum      atomic.Int64
		wg       sync.WaitGroup
	)

	for p := range producers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perProd {
				for !q.push(p*perProd + i) {
				}
			}
		}()
	}

	done := make(chan struct{})

	var cwg sync.WaitGroup

	for range consumers {
		cwg.Add(1)

		go func() {
			defer cwg.Done()

			for {
				if v, ok := q.pop(); ok {
					sum.Add(int64(v))
					consumed.Add(1)

					continue
				}

				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	wg.Wait()

	for consumed.Load() < producers*perProd {
	}

	close(done)
	cwg.Wait()

	n := int64(producers * perProd)
	if want := n * (n - 1) / 2; sum.Load() != want {
		t.Fatalf("sum of consumed items: want %d, got %d", want, sum.Load())
	}
}
