// Package delivery moves enriched articles from the poller to a chat
// publisher: an unbounded FIFO queue, the single worker draining it, and the
// message builder both share.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/Aero123421/RSS7/internal/model"
)

// Item is one article waiting for delivery to its feed's channel.
type Item struct {
	Article    model.Article
	Feed       model.Feed
	EnqueuedAt time.Time
}

// Queue is an unbounded FIFO with join semantics: every Pop must be matched
// by a Done, and Wait blocks until all pushed items are done.
type Queue struct {
	mu      sync.Mutex
	items   []Item
	pending int
	notify  chan struct{}
	waiters []chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue pushes an article for feed. It satisfies rss.Enqueuer.
func (q *Queue) Enqueue(article model.Article, feed model.Feed) {
	q.Push(Item{Article: article, Feed: feed, EnqueuedAt: time.Now()})
}

// Push appends item. It never blocks.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.pending++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest item, blocking until one is available or ctx ends.
func (q *Queue) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Pass the wakeup on for the next Pop.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Done marks one popped item finished.
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.pending--
	}
	if q.pending == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
}

// Len returns the number of items not yet popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the number of items pushed but not yet done.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Wait blocks until every pushed item is done or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
