// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws and receive every run and job
// event of that run as JSON text messages. The server closes the stream
// after the run's final event.
package websocket
