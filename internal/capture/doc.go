// Package capture implements the stream capture engine.
// An Engine connects to an Internet radio URL, requests ICY metadata, cuts the
// audio into per-track segments and reports song changes, stream end and stream
// failure to registered handlers.
package capture
