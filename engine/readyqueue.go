package engine

import (
	"container/heap"
	"sync"
)

// subExecTask is one unit of admission: a single filter combination of a
// single node, ready to run against the task executor's concurrency bound.
type subExecTask struct {
	nodeName string
	priority int
	seq      int
	run      func()
}

// taskHeap orders ready tasks by priority (higher first), ties broken by
// insertion order (lower seq first).
type taskHeap []*subExecTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*subExecTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// readyQueue is the priority-ordered admission queue shared by every node
// coordinator: whichever ready task has the highest priority (then the
// earliest insertion) is popped next.
type readyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   taskHeap
	seq    int
	closed bool
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a task, assigning it the next insertion sequence number.
// It reports false (and drops the task) if the queue is already closed.
func (q *readyQueue) push(nodeName string, priority int, run func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.seq++
	heap.Push(&q.heap, &subExecTask{nodeName: nodeName, priority: priority, seq: q.seq, run: run})
	q.cond.Signal()
	return true
}

// pop blocks until a task is available or the queue is closed and
// drained, returning (task, true) or (nil, false).
func (q *readyQueue) pop() (*subExecTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*subExecTask), true
}

// close marks the queue closed: pending pop calls on an empty queue return
// immediately once drained. Already-queued tasks are still served.
func (q *readyQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
