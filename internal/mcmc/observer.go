package mcmc

import (
	"sync"
	"sync/atomic"
)

// Progress is a diagnostic snapshot emitted every PrintEvery iterations.
type Progress struct {
	Chain        int
	Iteration    int
	CurrentScore float64
	BestScore    float64
	Accepted     int
	Preview      string
}

// Observer receives progress snapshots. It has no influence on the chain.
type Observer interface {
	Observe(Progress)
}

type ObserverFunc func(Progress)

func (f ObserverFunc) Observe(p Progress) { f(p) }

// AsyncObserver forwards snapshots to another observer on its own goroutine.
// Observe never blocks: snapshots that arrive while the buffer is full are
// dropped and counted.
type AsyncObserver struct {
	next    Observer
	ch      chan Progress
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Int64
}

func NewAsyncObserver(next Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 16
	}
	a := &AsyncObserver{
		next: next,
		ch:   make(chan Progress, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		for p := range a.ch {
			a.next.Observe(p)
		}
	}()
	return a
}

func (a *AsyncObserver) Observe(p Progress) {
	if a.closed.Load() {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- p:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of snapshots discarded so far.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close delivers everything already buffered and stops the goroutine. It must
// not race with Observe calls from running chains.
func (a *AsyncObserver) Close() {
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
	})
	<-a.done
}
