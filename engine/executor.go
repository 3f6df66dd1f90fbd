package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// taskExecutor is the cooperative worker pool described in the scheduler
// design: a single admitter goroutine pops the highest-priority ready
// sub-execution task and acquires a weighted semaphore slot before
// spawning it, so admission order always follows the priority queue even
// when the pool is saturated.
type taskExecutor struct {
	sem   *semaphore.Weighted
	queue *readyQueue
	wg    sync.WaitGroup
}

func newTaskExecutor(maxConcurrency int) *taskExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = 100
	}
	return &taskExecutor{
		sem:   semaphore.NewWeighted(int64(maxConcurrency)),
		queue: newReadyQueue(),
	}
}

// submit enqueues a sub-execution task for admission. Callers must not
// submit after closeAndWait has been called.
func (e *taskExecutor) submit(nodeName string, priority int, run func()) {
	e.wg.Add(1)
	if !e.queue.push(nodeName, priority, run) {
		e.wg.Done()
	}
}

// start runs the admitter loop until ctx is done or the queue is closed
// and drained.
func (e *taskExecutor) start(ctx context.Context) {
	go func() {
		for {
			task, ok := e.queue.pop()
			if !ok {
				return
			}
			if err := e.sem.Acquire(ctx, 1); err != nil {
				// Context cancelled: run the task anyway so it observes
				// cancellation itself and reports STOPPED, rather than
				// silently dropping work the caller is waiting on.
				go func(t *subExecTask) {
					defer e.wg.Done()
					t.run()
				}(task)
				continue
			}
			go func(t *subExecTask) {
				defer e.wg.Done()
				defer e.sem.Release(1)
				t.run()
			}(task)
		}
	}()
}

// closeAndWait closes the admission queue and blocks until every admitted
// task has completed.
func (e *taskExecutor) closeAndWait() {
	e.queue.close()
	e.wg.Wait()
}
