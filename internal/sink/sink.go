package sink

import (
	"context"
	"io"
	"strings"

	"github.com/hooman734/stream-subscription-api/internal/store"
)

// Sink kinds, as stored in the sinks table
const (
	SinkKindFTP       = store.SinkFTP
	SinkKindHTTP      = store.SinkHTTP
	SinkKindDirectory = store.SinkDirectory
)

// UploadFunc stores one song under the given file name
type UploadFunc func(ctx context.Context, content io.Reader, filename string) error

// Sink is a single upload destination
type Sink interface {
	Kind() string
	Upload(ctx context.Context, filename string, content io.Reader) error
}

// Recorder receives upload metrics
type Recorder interface {
	RecordUpload(kind, outcome string, durationSeconds float64)
	RecordUploadRetry(kind string)
	RecordSongFiltered()
}

type nopRecorder struct{}

func (nopRecorder) RecordUpload(string, string, float64) {}
func (nopRecorder) RecordUploadRetry(string)             {}
func (nopRecorder) RecordSongFiltered()                  {}

// SanitizeFilename makes a song file name safe to use as a single path
// element on every sink.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	cleaned = strings.TrimLeft(strings.TrimSpace(cleaned), ".")
	if strings.Trim(strings.TrimSuffix(cleaned, ".mp3"), "-_. ") == "" {
		return "untitled.mp3"
	}
	return cleaned
}
