// Package orchestrator owns the lifecycle of runs.
//
// The manager validates a submitted workflow into a run graph, waits for
// run-level concurrency admission, drives the run through the scheduler and
// keeps its report current in the run store. Every state change is published
// on the event bus: run events on domain.TopicRunEvents, instance
// transitions on domain.TopicJobEvents.
//
// The validator rejects steps the executor could not interpret before the
// graph builder checks names, dependencies, expressions and matrices.
package orchestrator
