// Package grpc serves the standard gRPC health service for the
// orchestrator. The serving status follows worker pool health and turns
// NOT_SERVING on shutdown.
package grpc
