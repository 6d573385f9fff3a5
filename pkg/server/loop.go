package server

import (
	"context"
	"time"
)

// A job is one unit of scene work executed on the host loop.
type job func()

// loop serializes all scene access onto a single goroutine. Jobs are
// queued from connection read goroutines and drained on a fixed tick,
// at most budget per tick, which keeps one chatty client from starving
// the host.
type loop struct {
	jobs     chan job
	interval time.Duration
	budget   int
	metrics  *metrics
}

func newLoop(queueSize int, interval time.Duration, budget int, m *metrics) *loop {
	return &loop{
		jobs:     make(chan job, queueSize),
		interval: interval,
		budget:   budget,
		metrics:  m,
	}
}

// enqueue hands fn to the host loop. It never blocks; false means the
// queue is full and the caller must refuse the work.
func (l *loop) enqueue(fn job) bool {
	select {
	case l.jobs <- fn:
		l.metrics.queueDepth.Set(float64(len(l.jobs)))
		return true
	default:
		l.metrics.queueRejected.Inc()
		return false
	}
}

// run drains the queue until ctx is cancelled. Jobs still queued at
// cancellation are dropped; their connections are closing anyway.
func (l *loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick executes up to budget queued jobs.
func (l *loop) tick() {
	for i := 0; i < l.budget; i++ {
		select {
		case fn := <-l.jobs:
			fn()
		default:
			l.metrics.queueDepth.Set(float64(len(l.jobs)))
			return
		}
	}
	l.metrics.queueDepth.Set(float64(len(l.jobs)))
}
