// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, broadcast or consumer-group delivery
//   - memory: in-process fan-out with ordered per-subscriber delivery
package events
