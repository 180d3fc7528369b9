// Package ws streams pipeline stats over WebSocket.
//
// Each connection receives a welcome frame, then a stats frame on a fixed
// interval until the client disconnects or the pipeline shuts down.
//
// Message Types (Client → Server):
//   - ping: keep-alive, answered with pong
//
// Message Types (Server → Client):
//   - system: connection established
//   - stats: full pipeline snapshot
//   - pong: ping reply
package ws
