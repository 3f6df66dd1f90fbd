package engine

import (
	"context"
	"time"

	"github.com/flowkernel/engine/event"
	"github.com/flowkernel/engine/observability"
)

// queueLogger multiplexes item-scoped messages into the engine's public
// event stream, tagging each with the composite filter id of the
// sub-execution that produced it, and mirrors a copy into the ambient
// observability.Observer for operator-facing logging.
type queueLogger struct {
	itemName string
	filterID string
	observer observability.Observer
	publish  func(event.Event)
	prompts  *promptBroker
	ctx      context.Context
}

func (l *queueLogger) emit(t event.Type, level observability.Level, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["item"] = l.itemName
	payload["filter_id"] = l.filterID
	l.publish(event.New(t, payload))

	if l.observer != nil {
		l.observer.OnEvent(context.Background(), observability.Event{
			Type:      observability.EventType(t),
			Level:     level,
			Timestamp: time.Now(),
			Source:    l.itemName,
			Item:      l.itemName,
			FilterID:  l.filterID,
			Data:      payload,
		})
	}
}

// Stdout records a standard_execution_msg line (e.g. a persistent
// manager's stdout relay), logged at LevelVerbose.
func (l *queueLogger) Stdout(data string) {
	l.emit(event.TypeStandardExecutionMsg, observability.LevelForStream("stdout"), map[string]any{"stream": "stdout", "data": data})
}

// Stderr records a standard_execution_msg line tagged as stderr, logged at
// LevelWarning: the manager relaying it is still alive, a confirmed
// command failure is reported separately once the sentinel resolves.
func (l *queueLogger) Stderr(data string) {
	l.emit(event.TypeStandardExecutionMsg, observability.LevelForStream("stderr"), map[string]any{"stream": "stderr", "data": data})
}

// Message records a generic event_msg.
func (l *queueLogger) Message(text string) {
	l.emit(event.TypeEventMsg, observability.LevelInfo, map[string]any{"message": text})
}

// Flash records a flash (transient UI notification) event.
func (l *queueLogger) Flash(text string) {
	l.emit(event.TypeFlash, observability.LevelInfo, map[string]any{"message": text})
}

// Prompt emits a prompt event and blocks until AnswerPrompt resolves it
// or the run context is cancelled, in which case it is declined.
func (l *queueLogger) Prompt(message string) bool {
	reply := l.prompts.open(l.itemName, l.filterID)
	l.emit(event.TypePrompt, observability.LevelInfo, map[string]any{"message": message})

	select {
	case accepted := <-reply:
		return accepted
	case <-l.ctx.Done():
		return false
	}
}
