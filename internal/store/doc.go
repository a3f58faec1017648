// Package store persists users, stream configurations and upload sinks in
// SQLite.
//
// It is the repository behind the ripper: the session core only ever reads
// stream configurations through ListOwnedStreams and GetOwnedStream, while
// the HTTP API uses the CRUD methods to manage them.
package store
