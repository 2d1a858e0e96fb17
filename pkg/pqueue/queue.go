package pqueue

import (
	"sort"
)

func WithOrderAsc() Option {
	return func(q *Queue) {
		q.order = orderAsc
	}
}

func WithOrderDesc() Option {
	return func(q *Queue) {
		q.order = orderDesc
	}
}

// WithCap bounds the queue. Items ranked past the bound are dropped on Push.
func WithCap(size uint) Option {
	return func(q *Queue) {
		q.cap = int(size)
	}
}

type Option func(*Queue)

type order uint8

const (
	orderAsc order = iota
	orderDesc
)

// Item is an index into some external collection ranked by Priority.
type Item struct {
	Index    int
	Priority float64
}

func New(opts ...Option) *Queue {
	q := &Queue{order: orderAsc, cap: -1}
	for _, opt := range opts {
		opt(q)
	}
	if q.cap > 0 {
		q.items = make([]Item, 0, q.cap+1)
	}
	return q
}

// Queue keeps items sorted by priority. Equal priorities keep insertion order.
type Queue struct {
	order order
	cap   int
	items []Item
}

func (q *Queue) before(a, b float64) bool {
	if q.order == orderAsc {
		return a < b
	}
	return a > b
}

// Push inserts an item at its rank.
func (q *Queue) Push(index int, priority float64) {
	if q.cap == 0 {
		return
	}
	if q.cap > 0 && len(q.items) == q.cap && !q.before(priority, q.items[len(q.items)-1].Priority) {
		return
	}
	pos := sort.Search(len(q.items), func(i int) bool {
		return q.before(priority, q.items[i].Priority)
	})
	q.items = append(q.items, Item{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = Item{Index: index, Priority: priority}
	if q.cap > 0 && len(q.items) > q.cap {
		q.items = q.items[:q.cap]
	}
}

// Head removes and returns the best ranked item.
func (q *Queue) Head() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	x := q.items[0]
	q.items = q.items[1:]
	return x, true
}

// PopAll empties the queue returning its items in rank order.
func (q *Queue) PopAll() []Item {
	pulled := make([]Item, len(q.items))
	copy(pulled, q.items)
	q.items = q.items[:0]
	return pulled
}

func (q *Queue) Cap() int { return q.cap }

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Seek(idx int) Item {
	return q.items[idx]
}
