package redis

import (
	"sync"

	"ta-core/internal/model"

	"github.com/gammazero/deque"
)

const defaultBacklogSize = 10000

// backlog holds results that could not be written while the breaker was
// open. It is bounded: once full, the oldest result is dropped.
type backlog struct {
	mu      sync.Mutex
	q       *deque.Deque[model.IndicatorResult]
	max     int
	dropped uint64
}

func newBacklog(max int) *backlog {
	if max <= 0 {
		max = defaultBacklogSize
	}
	return &backlog{q: deque.New[model.IndicatorResult](256), max: max}
}

// push appends results, evicting from the front past capacity.
func (b *backlog) push(results []model.IndicatorResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range results {
		if b.q.Len() >= b.max {
			b.q.PopFront()
			b.dropped++
		}
		b.q.PushBack(r)
	}
}

// take removes and returns up to n results from the front.
func (b *backlog) take(n int) []model.IndicatorResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.q.Len() {
		n = b.q.Len()
	}
	out := make([]model.IndicatorResult, n)
	for i := range out {
		out[i] = b.q.PopFront()
	}
	return out
}

// requeue puts results back at the front in their original order.
func (b *backlog) requeue(results []model.IndicatorResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(results) - 1; i >= 0; i-- {
		if b.q.Len() >= b.max {
			b.dropped++
			continue
		}
		b.q.PushFront(results[i])
	}
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Len()
}

func (b *backlog) droppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
