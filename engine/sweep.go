package engine

import (
	"context"
	"sync"

	"github.com/flowkernel/engine/connection"
	"github.com/flowkernel/engine/event"
	"github.com/flowkernel/engine/item"
	"github.com/flowkernel/engine/resource"
)

// runBackwardSweep gathers, for every node in reverse topological order
// (successors before predecessors), the backward resources its
// successors forwarded plus its own declared backward outputs, and
// stashes the aggregate for the forward sweep. It never calls Execute:
// per the scheduler design, a backward node only gathers and calls
// OutputResources(Backward).
func (e *Engine) runBackwardSweep(ctx context.Context) {
	order := e.graph.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]

		var gathered []resource.Resource
		for _, s := range e.graph.successors[n] {
			conn := e.connByEdge[n][s]
			gathered = append(gathered, conn.ConvertResources(e.backwardOutputs[s])...)
		}

		own := e.backwardItems[n].OutputResources(item.Backward)
		e.backwardOutputs[n] = append(gathered, own...)
	}
}

// runForwardSweep runs one coordinator goroutine per node; each waits for
// its predecessors' forward coordinators to finish before deciding
// whether to skip, exclude, or fan out and execute.
func (e *Engine) runForwardSweep(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(e.names))
	for _, n := range e.names {
		go func(name string) {
			defer wg.Done()
			e.runForwardNode(ctx, name)
		}(n)
	}
	wg.Wait()
}

func (e *Engine) runForwardNode(ctx context.Context, name string) {
	defer close(e.forwardDone[name])

	for _, p := range e.graph.predecessors[name] {
		<-e.forwardDone[p]
	}

	if e.predecessorFailedOrStopped(name) {
		e.nodeFinish[name] = item.StateSkipped
		return
	}

	if ctx.Err() != nil {
		e.nodeFinish[name] = item.StateSkipped
		return
	}

	if !e.permits[name] {
		e.runExcluded(ctx, name)
		return
	}

	e.runExecuted(ctx, name)
}

// predecessorFailedOrStopped reports whether any predecessor's outcome
// must short-circuit this node: a FAILED or STOPPED predecessor per the
// propagation rule, or a SKIPPED one, so the skip cascades transitively
// along forward edges instead of stopping at the first failure's direct
// successors.
func (e *Engine) predecessorFailedOrStopped(name string) bool {
	for _, p := range e.graph.predecessors[name] {
		switch e.nodeFinish[p] {
		case item.StateFailure, item.StateStopped, item.StateSkipped:
			return true
		}
	}
	return false
}

// gatherForwardStacks collects, per predecessor, its forwarded resource
// tuple and the connection carrying it. Order matches
// e.graph.predecessors[name].
func (e *Engine) gatherForwardStacks(name string) ([][]resource.Resource, []*connection.Connection) {
	preds := e.graph.predecessors[name]
	stacks := make([][]resource.Resource, len(preds))
	conns := make([]*connection.Connection, len(preds))
	for i, p := range preds {
		stacks[i] = e.forwardOutputs[p]
		conns[i] = e.connByEdge[p][name]
	}
	return stacks, conns
}

func (e *Engine) runExcluded(ctx context.Context, name string) {
	preds := e.graph.predecessors[name]
	var forwardIn []resource.Resource
	for _, p := range preds {
		conn := e.connByEdge[p][name]
		forwardIn = append(forwardIn, conn.ConvertResources(e.forwardOutputs[p])...)
	}
	backwardIn := e.backwardOutputs[name]

	e.publish(event.ExecStarted(name, ""))
	e.forwardItems[name].ExcludeExecution(forwardIn, backwardIn)
	e.forwardOutputs[name] = e.forwardItems[name].OutputResources(item.Forward)
	e.nodeFinish[name] = item.StateExcluded
	e.publish(event.ExecFinished(name, "", string(item.StateExcluded)))
}

func (e *Engine) runExecuted(ctx context.Context, name string) {
	predStacks, conns := e.gatherForwardStacks(name)
	combos := fanOut(predStacks, conns)
	backwardIn := e.backwardOutputs[name]

	var mu sync.Mutex
	var results []item.FinishState
	var aggregated []resource.Resource
	var wg sync.WaitGroup
	wg.Add(len(combos))

	priority := e.graph.priority[name]
	for _, combo := range combos {
		combo := combo
		e.executor.submit(name, priority, func() {
			defer wg.Done()
			state, outputs := e.runSubExecution(ctx, name, combo, backwardIn)
			mu.Lock()
			results = append(results, state)
			aggregated = append(aggregated, outputs...)
			mu.Unlock()
		})
	}
	wg.Wait()

	e.forwardOutputs[name] = aggregated
	e.nodeFinish[name] = worstFinishState(results)
}

func worstFinishState(states []item.FinishState) item.FinishState {
	worst := item.StateSuccess
	for _, s := range states {
		switch s {
		case item.StateStopped:
			return item.StateStopped
		case item.StateFailure:
			worst = item.StateFailure
		}
	}
	return worst
}

func (e *Engine) runSubExecution(ctx context.Context, name string, combo combination, backwardIn []resource.Resource) (item.FinishState, []resource.Resource) {
	logger := &queueLogger{
		itemName: name,
		filterID: combo.filterID,
		observer: e.observer,
		publish:  e.publish,
		prompts:  e.prompts,
		ctx:      ctx,
	}
	subCtx := item.WithLogger(ctx, logger)

	e.publish(event.ExecStarted(name, combo.filterID))
	state := e.forwardItems[name].Execute(subCtx, combo.resources, backwardIn)
	e.publish(event.ExecFinished(name, combo.filterID, string(state)))

	return state, e.forwardItems[name].OutputResources(item.Forward)
}
