// Package realtime implements the presence and fan-out channel: a registry of
// per-user topics and the websocket connections subscribed to them.
//
// Delivery is best effort. A user without live connections simply misses the
// event; the conversation store stays the source of truth.
package realtime
