// Package http implements the transport over HTTP. Every request is a
// POST /{shardId} with the serialized message as body.
//
// The client accepts endpoints with or without scheme ("localhost:8080" is
// sent to "http://localhost:8080"). Deadlines are taken from the request
// context; connection reuse is left to net/http.
package http
