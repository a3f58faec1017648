// Package sink delivers captured songs to the upload destinations bound to a
// stream.
//
// A Resolver turns a stream configuration into a single UploadFunc that
// applies the stream's filter, reads the song once and fans it out
// concurrently to every bound sink (FTP server, HTTP endpoint or local
// directory). Per-sink failures are aggregated with multierr, logged and
// counted; nothing is retried beyond what the HTTP sink does itself.
package sink
