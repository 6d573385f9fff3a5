// Package client mirrors a remote scene over its wire protocol. It
// dials the server with a standard WebSocket client, correlates
// responses to requests by id, pairs binary payloads with the
// responses that announced them, and delivers pushes on a channel.
//
// A Client is safe for concurrent use; requests from multiple
// goroutines are multiplexed over the single connection.
package client
