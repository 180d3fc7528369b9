// Package server provides the operational HTTP surface of a running
// pipeline.
//
// Endpoints:
//   - GET /         service identity
//   - GET /health   liveness plus coarse pipeline state
//   - GET /stats    full pipeline snapshot (buffers, groups, slots, counters)
//   - GET /metrics  Prometheus exposition
//   - GET /stream   WebSocket pushing periodic stats frames
//
// The surface is read-only: topology is declared up front, never mutated
// over HTTP. Shutdown is graceful and bounded by the caller's context.
package server
