package scheduler

import (
	"container/heap"
	"time"

	"github.com/warpdl/keypool/pkg/keypool"
)

// wait is one pending host callback.
type wait struct {
	token    Token
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
}

// waitHeap implements container/heap.Interface for waits, earliest deadline
// first. Equal deadlines keep arming order.
type waitHeap []*wait

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h waitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitHeap) Push(x any) {
	w := x.(*wait)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// waitQueue is the state shared by both hosts: the heap plus the token pool
// used to find a wait again on Cancel. It is not safe for concurrent use.
type waitQueue struct {
	heap   waitHeap
	tokens *keypool.Pool[*wait]
	seq    uint64
}

func newWaitQueue() *waitQueue {
	return &waitQueue{tokens: keypool.New[*wait]()}
}

func (q *waitQueue) push(deadline time.Time, fn func()) (Token, error) {
	w := &wait{deadline: deadline, seq: q.seq, fn: fn}
	t, err := q.tokens.AllocateWith(w)
	if err != nil {
		return 0, err
	}
	q.seq++
	w.token = t
	heap.Push(&q.heap, w)
	return t, nil
}

func (q *waitQueue) cancel(t Token) bool {
	w, ok := q.tokens.Get(t)
	if !ok {
		return false
	}
	heap.Remove(&q.heap, w.index)
	_ = q.tokens.Release(t)
	return true
}

// next returns the earliest deadline.
func (q *waitQueue) next() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].deadline, true
}

// popDue removes the earliest wait if it is due at now. Its token is free
// again before the callback runs, so the callback may arm new waits.
func (q *waitQueue) popDue(now time.Time) (func(), bool) {
	if len(q.heap) == 0 || q.heap[0].deadline.After(now) {
		return nil, false
	}
	w := heap.Pop(&q.heap).(*wait)
	_ = q.tokens.Release(w.token)
	return w.fn, true
}

func (q *waitQueue) len() int {
	return len(q.heap)
}
