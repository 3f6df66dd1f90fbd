package engine

import "errors"

// ErrCycle is returned by buildDAG when the supplied adjacency is not
// acyclic. New does not return it: it records it, and the run finishes
// FAILED with a lone dag_exec_finished event.
var ErrCycle = errors.New("engine: dag contains a cycle")

// ErrUnknownConnection is returned when an edge in the adjacency has no
// matching Connection.
var ErrUnknownConnection = errors.New("engine: no connection registered for edge")

// ErrAlreadyRunning is returned by Run when the engine is not SLEEPING.
var ErrAlreadyRunning = errors.New("engine: run called while not sleeping")
