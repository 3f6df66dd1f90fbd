// Package engine implements the two-sweep DAG scheduler: a backward
// resource-gathering sweep followed by a forward execution sweep, with
// per-node filter fan-out and a priority-ordered cooperative worker pool.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flowkernel/engine/config"
	"github.com/flowkernel/engine/connection"
	"github.com/flowkernel/engine/event"
	"github.com/flowkernel/engine/item"
	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/resource"
)

// ItemSpec is the raw, not-yet-decoded description of one DAG node.
type ItemSpec struct {
	ItemType string
	GroupID  string
	Raw      map[string]any
}

// Construction holds every input needed to build an Engine.
type Construction struct {
	Registry       *item.Registry
	Items          map[string]ItemSpec
	Successors     map[string][]string
	Connections    []*connection.Connection
	Permits        map[string]bool
	Settings       config.Settings
	ProjectDir     string
	Debug          bool
	MaxConcurrency int
	Priorities     map[string]int
	Observer       observability.Observer
	EventBuffer    int
}

// Engine runs one DAG to completion: a backward sweep, then a forward
// sweep, publishing events to GetEvent until dag_exec_finished closes the
// stream.
type Engine struct {
	registry        *item.Registry
	itemSpecs       map[string]ItemSpec
	names           []string
	graph           *dag
	constructionErr error
	connByEdge      map[string]map[string]*connection.Connection
	permits         map[string]bool
	settings        config.Settings
	projectDir      string
	debug           bool
	observer        observability.Observer

	state atomic.Int32
	runID string

	events   chan event.Event
	closeOne sync.Once

	executor *taskExecutor
	prompts  *promptBroker

	stopRequested atomic.Bool
	cancel        context.CancelFunc

	itemsMu       sync.RWMutex
	forwardItems  map[string]item.ExecutableItem
	backwardItems map[string]item.ExecutableItem

	forwardDone map[string]chan struct{}

	forwardOutputs  map[string][]resource.Resource
	backwardOutputs map[string][]resource.Resource
	nodeFinish      map[string]item.FinishState
}

// New builds an Engine from c. Structural problems with the DAG (a
// cycle, an edge with no matching connection) are not returned here:
// per the error-handling design they surface as an immediate FAILED run
// with a dag_exec_finished event and no item events, so New always
// succeeds given well-formed Go values and the failure is reported
// through the same event stream as any other run-time error.
func New(c Construction) (*Engine, error) {
	names := make([]string, 0, len(c.Items))
	for name := range c.Items {
		names = append(names, name)
	}
	sort.Strings(names)

	successors := make(map[string][]string, len(names))
	for _, n := range names {
		successors[n] = append([]string(nil), c.Successors[n]...)
	}

	var constructionErr error
	graph, err := buildDAG(names, successors, c.Priorities)
	if err != nil {
		constructionErr = err
	}

	connByEdge := make(map[string]map[string]*connection.Connection, len(c.Connections))
	for _, conn := range c.Connections {
		if connByEdge[conn.Source] == nil {
			connByEdge[conn.Source] = make(map[string]*connection.Connection)
		}
		connByEdge[conn.Source][conn.Destination] = conn
	}
	if constructionErr == nil {
		for _, n := range names {
			for _, s := range successors[n] {
				if connByEdge[n] == nil || connByEdge[n][s] == nil {
					constructionErr = fmt.Errorf("%w: %s -> %s", ErrUnknownConnection, n, s)
				}
			}
		}
	}

	permits := make(map[string]bool, len(names))
	for _, n := range names {
		permit, ok := c.Permits[n]
		permits[n] = !ok || permit
	}

	eventBuffer := c.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 256
	}

	e := &Engine{
		registry:        c.Registry,
		itemSpecs:       c.Items,
		names:           names,
		graph:           graph,
		constructionErr: constructionErr,
		connByEdge:      connByEdge,
		permits:         permits,
		settings:        c.Settings,
		projectDir:      c.ProjectDir,
		debug:           c.Debug,
		observer:        c.Observer,
		events:          make(chan event.Event, eventBuffer),
		executor:        newTaskExecutor(c.MaxConcurrency),
		prompts:         newPromptBroker(),
		forwardItems:    make(map[string]item.ExecutableItem, len(names)),
		backwardItems:   make(map[string]item.ExecutableItem, len(names)),
		forwardDone:     make(map[string]chan struct{}, len(names)),
		forwardOutputs:  make(map[string][]resource.Resource, len(names)),
		backwardOutputs: make(map[string][]resource.Resource, len(names)),
		nodeFinish:      make(map[string]item.FinishState, len(names)),
	}
	e.state.Store(int32(StateSleeping))
	for _, n := range names {
		e.forwardDone[n] = make(chan struct{})
	}
	return e, nil
}

// State returns the engine's current run state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// RunID returns the correlation id generated by the most recent Run call,
// or "" before the first Run.
func (e *Engine) RunID() string {
	return e.runID
}

func (e *Engine) publish(ev event.Event) {
	e.events <- ev
}

// Run starts execution in the background; it does not block on the
// event stream. Returns ErrAlreadyRunning if the engine is not SLEEPING.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateSleeping), int32(StateRunning)) {
		return ErrAlreadyRunning
	}

	e.runID = uuid.Must(uuid.NewV7()).String()
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.executor.start(runCtx)

	go e.runLoop(runCtx)
	return nil
}

// GetEvent blocks until the next event is available. It returns
// (event, true) normally, or (zero, false) once the stream has been
// closed after dag_exec_finished.
func (e *Engine) GetEvent(ctx context.Context) (event.Event, bool) {
	select {
	case ev, ok := <-e.events:
		return ev, ok
	case <-ctx.Done():
		return event.Event{}, false
	}
}

// Stop requests cooperative termination. It is idempotent and
// non-blocking: it sets the flag and returns without waiting for
// in-flight sub-executions to observe it.
func (e *Engine) Stop() {
	if e.stopRequested.CompareAndSwap(false, true) {
		if e.cancel != nil {
			e.cancel()
		}
		e.prompts.declineAll()

		e.itemsMu.RLock()
		for _, it := range e.forwardItems {
			it.StopExecution()
		}
		e.itemsMu.RUnlock()
	}
}

// AnswerPrompt resolves the oldest outstanding prompt for itemName.
func (e *Engine) AnswerPrompt(itemName string, accepted bool) bool {
	return e.prompts.answer(itemName, accepted)
}

func (e *Engine) runLoop(ctx context.Context) {
	defer e.executor.closeAndWait()

	if e.constructionErr != nil {
		e.finish(ctx, event.OutcomeFailed)
		return
	}

	if err := e.buildItems(ctx); err != nil {
		e.finish(ctx, event.OutcomeFailed)
		return
	}

	e.runBackwardSweep(ctx)
	e.runForwardSweep(ctx)

	outcome := e.computeOutcome()
	e.finish(ctx, outcome)
}

// buildItems constructs both the forward- and backward-direction item
// instances per node (an item is instantiated twice per run, once per
// sweep direction, and never reused across runs).
func (e *Engine) buildItems(ctx context.Context) error {
	e.itemsMu.Lock()
	defer e.itemsMu.Unlock()

	for _, n := range e.names {
		spec := e.itemSpecs[n]
		forward, err := e.registry.Build(spec.ItemType, n, spec.GroupID, spec.Raw, e.settings, e.observer)
		if err != nil {
			return err
		}
		backward, err := e.registry.Build(spec.ItemType, n, spec.GroupID, spec.Raw, e.settings, e.observer)
		if err != nil {
			return err
		}
		e.forwardItems[n] = forward
		e.backwardItems[n] = backward
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, outcome event.Outcome) {
	e.publish(event.DAGExecFinished(outcome))
	switch outcome {
	case event.OutcomeCompleted:
		e.state.Store(int32(StateCompleted))
	case event.OutcomeUserStopped:
		e.state.Store(int32(StateUserStopped))
	default:
		e.state.Store(int32(StateFailed))
	}
	e.closeOne.Do(func() { close(e.events) })
}

// computeOutcome reflects the worst-case state over all nodes: COMPLETED
// only if every node is SUCCESS/SKIPPED/EXCLUDED; otherwise FAILED, or
// USER_STOPPED if a stop was requested.
func (e *Engine) computeOutcome() event.Outcome {
	if e.stopRequested.Load() {
		return event.OutcomeUserStopped
	}
	for _, n := range e.names {
		switch e.nodeFinish[n] {
		case item.StateFailure, item.StateStopped, item.StateNeverFinished:
			return event.OutcomeFailed
		}
	}
	return event.OutcomeCompleted
}
