// Package event defines the public event stream vocabulary consumed by
// Engine.GetEvent callers. It is deliberately separate from the
// observability package: observability.Event is the ambient logging
// substrate the module emits to its own operator; event.Event is the
// workflow-run stream a caller (the workbench) drains to render progress.
package event

// Type identifies the kind of payload an Event carries.
type Type string

const (
	TypeExecStarted            Type = "exec_started"
	TypeExecFinished           Type = "exec_finished"
	TypeEventMsg               Type = "event_msg"
	TypeProcessMsg             Type = "process_msg"
	TypeStandardExecutionMsg   Type = "standard_execution_msg"
	TypeKernelExecutionMsg     Type = "kernel_execution_msg"
	TypePersistentExecutionMsg Type = "persistent_execution_msg"
	TypePrompt                 Type = "prompt"
	TypeFlash                  Type = "flash"
	TypeDAGExecFinished        Type = "dag_exec_finished"
)

// Outcome is the terminal, run-wide result carried by a dag_exec_finished
// event's payload.
type Outcome string

const (
	OutcomeCompleted   Outcome = "COMPLETED"
	OutcomeUserStopped Outcome = "USER_STOPPED"
	OutcomeFailed      Outcome = "FAILED"
)

// Event is the (type, payload) tuple the engine publishes. Payload keys
// are event-type specific; see the Payload helpers below for the ones the
// engine itself produces.
type Event struct {
	Type    Type
	Payload map[string]any
}

// IsTerminal reports whether this event ends the stream: no further
// event follows it.
func (e Event) IsTerminal() bool {
	return e.Type == TypeDAGExecFinished
}

// New builds an Event, defensively copying nothing — callers are expected
// to treat the payload as immutable once published.
func New(t Type, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, Payload: payload}
}

// ExecStarted builds an exec_started event for an item, tagged with the
// composite filter id of its sub-execution (empty for an unfiltered run).
func ExecStarted(itemName, filterID string) Event {
	return New(TypeExecStarted, map[string]any{
		"item":      itemName,
		"filter_id": filterID,
	})
}

// ExecFinished builds an exec_finished event carrying the item's
// per-sub-execution finish state.
func ExecFinished(itemName, filterID, finishState string) Event {
	return New(TypeExecFinished, map[string]any{
		"item":         itemName,
		"filter_id":    filterID,
		"finish_state": finishState,
	})
}

// Prompt builds a prompt event an item emits to request user confirmation.
func Prompt(itemName, filterID, message string) Event {
	return New(TypePrompt, map[string]any{
		"item":      itemName,
		"filter_id": filterID,
		"message":   message,
	})
}

// DAGExecFinished builds the terminal event for a run.
func DAGExecFinished(outcome Outcome) Event {
	return New(TypeDAGExecFinished, map[string]any{
		"outcome": string(outcome),
	})
}
