// Package queue produces the ordered, finite sequences of work items consumed
// by the dispatcher. Number sequences are materialized up front; work items are
// built lazily so large ranges with several variants stay cheap.
package queue

import (
	"github.com/JakeFAU/docprobe/internal/probe"
)

// Known reports whether a number/variant pair is already inventoried.
type Known interface {
	Has(number int64, variant string) bool
}

// Builder turns a number/variant pair into a WorkItem.
type Builder func(number int64, variant string) probe.WorkItem

// ExcludeFunc reports whether a number/variant pair should be left out.
type ExcludeFunc func(number int64, variant string) bool

// Queue yields work items in dispatch order. It is not safe for concurrent
// use; the dispatcher's coordinator is its only reader.
type Queue struct {
	prefix   []probe.WorkItem
	numbers  []int64
	variants []string
	exclude  ExcludeFunc
	build    Builder

	pi, ni, vi int
	total      int
}

// New returns a Queue that first yields prefix and then every number expanded
// across variants, in order, skipping pairs for which exclude returns true.
// A nil exclude keeps everything. An empty variant list expands each number
// exactly once with an empty variant.
func New(prefix []probe.WorkItem, numbers []int64, variants []string, exclude ExcludeFunc, build Builder) *Queue {
	if len(variants) == 0 {
		variants = []string{""}
	}
	if exclude == nil {
		exclude = func(int64, string) bool { return false }
	}
	q := &Queue{
		prefix:   append([]probe.WorkItem(nil), prefix...),
		numbers:  numbers,
		variants: append([]string(nil), variants...),
		exclude:  exclude,
		build:    build,
	}
	q.total = len(q.prefix)
	if build != nil {
		for _, n := range numbers {
			for _, v := range q.variants {
				if !exclude(n, v) {
					q.total++
				}
			}
		}
	}
	return q
}

// FromItems returns a Queue over an explicit item list.
func FromItems(items []probe.WorkItem) *Queue {
	return New(items, nil, nil, nil, nil)
}

// Len returns the total number of items the queue yields from the start.
func (q *Queue) Len() int {
	return q.total
}

// Next returns the next item, or false once the queue is exhausted.
func (q *Queue) Next() (probe.WorkItem, bool) {
	if q.pi < len(q.prefix) {
		item := q.prefix[q.pi]
		q.pi++
		return item, true
	}
	if q.build == nil {
		return probe.WorkItem{}, false
	}
	for q.ni < len(q.numbers) {
		n := q.numbers[q.ni]
		v := q.variants[q.vi]
		q.vi++
		if q.vi == len(q.variants) {
			q.vi = 0
			q.ni++
		}
		if q.exclude(n, v) {
			continue
		}
		return q.build(n, v), true
	}
	return probe.WorkItem{}, false
}

// Peek returns up to limit items from the start of a fresh copy of the queue
// without consuming q. It backs dry-run listings.
func (q *Queue) Peek(limit int) []probe.WorkItem {
	clone := *q
	clone.pi, clone.ni, clone.vi = 0, 0, 0
	out := make([]probe.WorkItem, 0, min(limit, q.total))
	for len(out) < limit {
		item, ok := clone.Next()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// Drain consumes and returns every remaining item.
func (q *Queue) Drain() []probe.WorkItem {
	var out []probe.WorkItem
	for {
		item, ok := q.Next()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}
