// Package transport owns every connection to the replicated pub/sub and
// key-value backing store (Redis, discovered via Sentinel when configured).
//
// It provides four primitives to the rest of the coordination layer:
//
//   - Publish / Subscribe: at-most-once, fire-and-forget swarm channels with
//     HMAC-SHA256 signed envelopes and colon-delimited channel names
//   - Get / Set: simple key-value access for cache persistence
//   - Append / Read: ordered, replayable stream access for audit trails
//
// While disconnected, outgoing publishes are held in a bounded local buffer
// (oldest dropped on overflow) and flushed after reconnect. Ordering across
// the disconnect boundary is not guaranteed; delivery is best-effort.
package transport
