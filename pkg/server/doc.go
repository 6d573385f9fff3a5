// Package server runs the scene endpoint: a plain TCP listener that
// upgrades connections with the WebSocket handshake, feeds request
// envelopes to the dispatcher, and mirrors scene changes back to every
// connected client as push frames.
//
// All scene access is serialized onto a single host loop. Connection
// read goroutines never touch the graph directly; they enqueue work
// onto a bounded queue the loop drains on a fixed tick. When the queue
// is full the request is refused immediately with a busy error, so a
// stalled host never builds unbounded backlog.
//
// A second, optional HTTP listener exposes health and Prometheus
// metrics for operations tooling. Browsers that hit the scene port
// with a regular GET receive a small embedded status page instead of
// a protocol error.
package server
