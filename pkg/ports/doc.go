// Package ports declares the capabilities the orchestration core consumes:
// the step executor, the blob store, the event bus, run storage and metrics.
package ports
