package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hooman734/stream-subscription-api/internal/audio"
	"github.com/hooman734/stream-subscription-api/internal/protocol"
)

// State constants for the engine lifecycle
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateEnded   = "ended"
	StateFailed  = "failed"
	StateStopped = "stopped"
)

// Config contains capture engine configuration
type Config struct {
	UserAgent            string
	ConnectTimeout       time.Duration
	MaxSegmentBytes      int
	MinSegmentBytes      int
	SkipFirstTrack       bool
	AllowPrivateNetworks bool
}

// Song is delivered to song-changed handlers once a track is complete
type Song struct {
	Audio    io.ReadSeeker
	Track    audio.Track
	Size     int
	Sequence uint64
	Duration time.Duration
}

// Stats is a snapshot of engine state
type Stats struct {
	State        string `json:"state"`
	SourceURL    string `json:"source_url"`
	Station      string `json:"station,omitempty"`
	BytesRead    int64  `json:"bytes_read"`
	Songs        int64  `json:"songs"`
	CurrentTrack string `json:"current_track,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Engine captures one Internet radio stream.
// Handlers run on the engine's goroutine and must not call Dispose.
type Engine struct {
	url    string
	config Config
	logger *slog.Logger
	client *http.Client

	mu           sync.Mutex
	state        string
	station      string
	lastError    string
	started      bool
	disposed     bool
	cancel       context.CancelFunc
	done         chan struct{}
	chunker      *audio.Chunker
	songChanged  []func(Song)
	streamEnded  []func()
	streamFailed []func(error)

	disposeOnce sync.Once
	bytesRead   atomic.Int64
	songs       atomic.Int64
}

// NewEngine creates an engine bound to a stream URL. Nothing happens until Start.
func NewEngine(sourceURL string, config Config, logger *slog.Logger) *Engine {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "stream-subscription-api/1.0"
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	if !config.AllowPrivateNetworks {
		// Checked at dial time so redirects and DNS rebinding cannot reach
		// private addresses either.
		dialer.Control = dialControl
	}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   config.ConnectTimeout,
			ResponseHeaderTimeout: config.ConnectTimeout,
			DisableCompression:    true,
		},
		CheckRedirect: checkRedirect(config.AllowPrivateNetworks),
	}

	return &Engine{
		url:    sourceURL,
		config: config,
		logger: logger.With(slog.String("stream_url", sourceURL)),
		client: client,
		state:  StateIdle,
		chunker: audio.NewChunker(audio.ChunkingConfig{
			MaxSegmentBytes: config.MaxSegmentBytes,
			MinSegmentBytes: config.MinSegmentBytes,
			SkipFirstTrack:  config.SkipFirstTrack,
		}),
	}
}

// OnSongChanged registers a handler for completed tracks
func (e *Engine) OnSongChanged(fn func(Song)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.songChanged = append(e.songChanged, fn)
}

// OnStreamEnded registers a handler for a stream that ended on its own
func (e *Engine) OnStreamEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamEnded = append(e.streamEnded, fn)
}

// OnStreamFailed registers a handler for capture failures
func (e *Engine) OnStreamFailed(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamFailed = append(e.streamFailed, fn)
}

// Start begins capturing in the background. Calling Start more than once, or
// after Dispose, does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.disposed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.started = true
	e.state = StateRunning
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx, e.done)
}

// Dispose stops capturing, closes the connection and waits for the capture
// goroutine to exit. Idempotent and safe to call before Start.
func (e *Engine) Dispose() {
	e.disposeOnce.Do(func() {
		e.mu.Lock()
		e.disposed = true
		cancel := e.cancel
		done := e.done
		e.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}

// Stats returns a snapshot of the engine state
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	state := e.state
	station := e.station
	lastErr := e.lastError
	e.mu.Unlock()

	var current string
	if track, ok := e.chunker.CurrentTrack(); ok {
		current = track.String()
	}

	return Stats{
		State:        state,
		SourceURL:    e.url,
		Station:      station,
		BytesRead:    e.bytesRead.Load(),
		Songs:        e.songs.Load(),
		CurrentTrack: current,
		LastError:    lastErr,
	}
}

// run drives one capture and reports how it ended
func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := e.capture(ctx)
	e.chunker.Discard()

	if ctx.Err() != nil {
		e.setState(StateStopped, "")
		e.logger.Info("Capture stopped",
			slog.Int64("bytes_read", e.bytesRead.Load()),
			slog.Int64("songs", e.songs.Load()),
		)
		return
	}

	if err != nil {
		e.setState(StateFailed, err.Error())
		e.logger.Warn("Capture failed",
			slog.String("error", err.Error()),
			slog.Int64("bytes_read", e.bytesRead.Load()),
		)
		e.emitFailed(err)
		return
	}

	e.setState(StateEnded, "")
	e.logger.Info("Capture ended (source closed)",
		slog.Int64("bytes_read", e.bytesRead.Load()),
		slog.Int64("songs", e.songs.Load()),
	)
	e.emitEnded()
}

// capture connects and reads until EOF, error or cancellation
func (e *Engine) capture(ctx context.Context) error {
	if e.config.AllowPrivateNetworks {
		if err := validateURLShape(e.url); err != nil {
			return err
		}
	} else if err := ValidateURL(ctx, e.url); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(protocol.HeaderMetaData, "1")
	req.Header.Set("User-Agent", e.config.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from stream", resp.StatusCode)
	}

	metaInt, err := protocol.ParseMetaInt(resp.Header)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.station = resp.Header.Get(protocol.HeaderName)
	e.mu.Unlock()

	e.logger.Info("Capture started",
		slog.Int("metaint", metaInt),
		slog.String("station", resp.Header.Get(protocol.HeaderName)),
		slog.String("content_type", resp.Header.Get("Content-Type")),
	)

	if metaInt == 0 {
		e.logger.Warn("Stream does not provide ICY metadata, no song boundaries will be detected")
	}

	reader := protocol.NewReader(resp.Body, metaInt)
	for {
		frame, readErr := reader.ReadFrame()

		if len(frame.Audio) > 0 {
			e.bytesRead.Add(int64(len(frame.Audio)))
			e.chunker.WriteAudio(frame.Audio)
		}

		if title, ok := frame.Title(); ok {
			if segment := e.chunker.ProcessTitle(title, time.Now()); segment != nil && ctx.Err() == nil {
				e.emitSong(segment)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
}

func (e *Engine) setState(state, lastError string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	e.lastError = lastError
}

func (e *Engine) emitSong(segment *audio.Segment) {
	e.songs.Add(1)

	e.logger.Debug("Song captured",
		slog.String("artist", segment.Track.Artist),
		slog.String("title", segment.Track.Title),
		slog.Int("size_bytes", segment.Size),
		slog.Duration("duration", segment.Duration),
	)

	song := Song{
		Audio:    segment.Data,
		Track:    segment.Track,
		Size:     segment.Size,
		Sequence: segment.Sequence,
		Duration: segment.Duration,
	}

	e.mu.Lock()
	handlers := append([]func(Song){}, e.songChanged...)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(song)
	}
}

func (e *Engine) emitEnded() {
	e.mu.Lock()
	handlers := append([]func(){}, e.streamEnded...)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (e *Engine) emitFailed(err error) {
	e.mu.Lock()
	handlers := append([]func(error){}, e.streamFailed...)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(err)
	}
}
