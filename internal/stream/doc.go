// Package stream manages per-user capture sessions against Internet radio
// streams.
//
// A single Registry holds every live session in the process, keyed by stream
// ID. A ManagerFactory hands out user-scoped Managers that start, stop and
// report sessions against that shared registry, and wires each capture
// engine's song, end and failure events to the stream's sinks and to the
// session status.
package stream
