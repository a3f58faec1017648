// Package server implements the HTTP API of the ripper service: session
// control (status, start, stop), management of streams and sinks, a
// websocket feed of session events, and health, statistics and Prometheus
// endpoints.
package server
