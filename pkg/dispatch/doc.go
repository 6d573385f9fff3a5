// Package dispatch routes JSON envelopes from clients to scene
// operations and builds the response and push envelopes that travel
// back.
//
// A request envelope is either a query (read something) or a command
// (change something). Every request gets exactly one response envelope
// echoing its id; queries for binary payloads additionally produce a
// binary frame the transport sends immediately after the response.
// Push envelopes have a null id and announce scene changes to every
// connected client.
//
// Dispatch runs on the host loop, so handlers may touch the scene
// graph freely. A handler panic is converted into an error response
// for that one request; it never takes the connection down.
package dispatch
