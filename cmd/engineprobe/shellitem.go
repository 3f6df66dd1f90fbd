package main

import (
	"context"
	"fmt"

	"github.com/flowkernel/engine/config"
	"github.com/flowkernel/engine/execmgr"
	"github.com/flowkernel/engine/item"
	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/resource"
)

// shellSpec is the decoded specification for one "shell" item: a one-shot
// command run through a ProcessExecutionManager, plus the output resource
// it hands downstream once the command exits cleanly.
type shellSpec struct {
	Argv        []string
	OutputLabel string
	OutputURL   string
}

func decodeShellSpec(raw map[string]any) (any, error) {
	rawArgv, _ := raw["argv"].([]any)
	argv := make([]string, 0, len(rawArgv))
	for _, a := range rawArgv {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("shellitem: argv entries must be strings")
		}
		argv = append(argv, s)
	}
	label, _ := raw["output_label"].(string)
	url, _ := raw["output_url"].(string)
	return shellSpec{Argv: argv, OutputLabel: label, OutputURL: url}, nil
}

// shellItem demonstrates wiring ExecutableItem to execmgr: Execute spawns a
// ProcessExecutionManager, relays its output through the per-sub-execution
// item.Logger, and waits for it to exit.
type shellItem struct {
	name     string
	groupID  string
	spec     shellSpec
	observer observability.Observer

	proc    *execmgr.ProcessExecutionManager
	forward []resource.Resource
}

func constructShellItem(name, groupID string, spec any, settings config.Settings, observer observability.Observer) (item.ExecutableItem, error) {
	s, ok := spec.(shellSpec)
	if !ok {
		return nil, fmt.Errorf("shellitem: unexpected specification type %T", spec)
	}
	return &shellItem{name: name, groupID: groupID, spec: s, observer: observer}, nil
}

func (s *shellItem) Name() string    { return s.name }
func (s *shellItem) GroupID() string { return s.groupID }

func (s *shellItem) ReadyToExecute() bool { return len(s.spec.Argv) > 0 }

func (s *shellItem) Execute(ctx context.Context, forward, backward []resource.Resource) item.FinishState {
	logger := item.LoggerFromContext(ctx)

	s.proc = execmgr.NewProcessExecutionManager(s.spec.Argv)
	msgs, err := s.proc.Run(ctx)
	if err != nil {
		logger.Stderr(err.Error())
		return item.StateFailure
	}

	for msg := range msgs {
		switch msg.Stream {
		case execmgr.StreamStdout:
			logger.Stdout(msg.Data)
		case execmgr.StreamStderr:
			logger.Stderr(msg.Data)
		}
	}

	if err := s.proc.Wait(); err != nil {
		if ctx.Err() != nil {
			return item.StateStopped
		}
		logger.Stderr(err.Error())
		return item.StateFailure
	}

	if s.spec.OutputLabel != "" {
		s.forward = append(append([]resource.Resource(nil), forward...),
			resource.New(s.name, resource.KindTransientFile, s.spec.OutputLabel, s.spec.OutputURL))
	} else {
		s.forward = forward
	}
	return item.StateSuccess
}

func (s *shellItem) ExcludeExecution(forward, backward []resource.Resource) {
	s.forward = forward
}

func (s *shellItem) OutputResources(direction item.Direction) []resource.Resource {
	if direction == item.Backward {
		return nil
	}
	return s.forward
}

func (s *shellItem) StopExecution() {
	if s.proc != nil {
		s.proc.Stop()
	}
}
