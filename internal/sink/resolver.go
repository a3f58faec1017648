package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/hooman734/stream-subscription-api/internal/store"
)

// Config contains sink configuration shared by every stream
type Config struct {
	UploadTimeout time.Duration
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration
	DirectoryRoot string
	UserAgent     string
}

// Resolver builds upload functions from stream configurations
type Resolver struct {
	config   Config
	client   *Client
	recorder Recorder
	logger   *slog.Logger
}

// NewResolver creates a resolver. recorder may be nil.
func NewResolver(config Config, recorder Recorder, logger *slog.Logger) *Resolver {
	if config.UploadTimeout <= 0 {
		config.UploadTimeout = 2 * time.Minute
	}
	if config.DirectoryRoot == "" {
		config.DirectoryRoot = "recordings"
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Resolver{
		config: config,
		client: NewClient(ClientConfig{
			Timeout:       config.UploadTimeout,
			MaxRetries:    config.MaxRetries,
			MaxConcurrent: config.MaxConcurrent,
			RetryBackoff:  config.RetryBackoff,
			UserAgent:     config.UserAgent,
		}, recorder),
		recorder: recorder,
		logger:   logger,
	}
}

// Stats returns HTTP upload client statistics
func (r *Resolver) Stats() ClientStats {
	return r.client.GetStats()
}

// Build creates the Sink for one stored sink configuration
func (r *Resolver) Build(cfg store.Sink) (Sink, error) {
	switch cfg.Kind {
	case SinkKindFTP:
		return NewFTPSink(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Path, r.config.UploadTimeout), nil
	case SinkKindHTTP:
		return NewHTTPSink(r.client, cfg.URL, cfg.Username, cfg.Password), nil
	case SinkKindDirectory:
		return NewDirectorySink(r.config.DirectoryRoot, cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// Resolve returns the upload function for a stream. The stream's filter is
// matched case-insensitively against the file name without its extension,
// that is "{artist}-{title}"; songs that do not match are skipped.
func (r *Resolver) Resolve(ctx context.Context, stream store.Stream) (UploadFunc, error) {
	var filter *regexp.Regexp
	if stream.Filter != "" {
		re, err := regexp.Compile("(?i)" + stream.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter for stream %d: %w", stream.ID, err)
		}
		filter = re
	}

	type boundSink struct {
		id   int64
		name string
		sink Sink
	}
	sinks := make([]boundSink, 0, len(stream.Sinks))
	for _, cfg := range stream.Sinks {
		s, err := r.Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("sink %d: %w", cfg.ID, err)
		}
		sinks = append(sinks, boundSink{id: cfg.ID, name: cfg.Name, sink: s})
	}

	logger := r.logger.With(slog.Int64("stream_id", stream.ID))
	if len(sinks) == 0 {
		logger.Warn("Stream has no sinks, captured songs will be discarded")
	}

	return func(ctx context.Context, content io.Reader, filename string) error {
		if filter != nil && !filter.MatchString(strings.TrimSuffix(filename, ".mp3")) {
			r.recorder.RecordSongFiltered()
			logger.Debug("Song skipped by filter", slog.String("filename", filename))
			return nil
		}
		if len(sinks) == 0 {
			return nil
		}

		data, err := io.ReadAll(content)
		if err != nil {
			return fmt.Errorf("failed to read song: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, r.config.UploadTimeout)
		defer cancel()

		name := SanitizeFilename(filename)
		errs := make([]error, len(sinks))

		var wg sync.WaitGroup
		for i, bs := range sinks {
			wg.Add(1)
			go func(i int, bs boundSink) {
				defer wg.Done()

				start := time.Now()
				err := bs.sink.Upload(ctx, name, bytes.NewReader(data))
				elapsed := time.Since(start)

				attrs := []any{
					slog.Int64("sink_id", bs.id),
					slog.String("sink_kind", bs.sink.Kind()),
					slog.String("filename", name),
					slog.Int("size_bytes", len(data)),
					slog.Duration("duration", elapsed),
				}
				if err != nil {
					r.recorder.RecordUpload(bs.sink.Kind(), "failure", elapsed.Seconds())
					logger.Warn("Upload failed", append(attrs, slog.String("error", err.Error()))...)
					errs[i] = fmt.Errorf("sink %d (%s): %w", bs.id, bs.name, err)
					return
				}
				r.recorder.RecordUpload(bs.sink.Kind(), "success", elapsed.Seconds())
				logger.Info("Song uploaded", attrs...)
			}(i, bs)
		}
		wg.Wait()

		return multierr.Combine(errs...)
	}, nil
}
