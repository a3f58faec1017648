package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hooman734/stream-subscription-api/internal/capture"
	"github.com/hooman734/stream-subscription-api/internal/sink"
	"github.com/hooman734/stream-subscription-api/internal/store"
)

// Engine is a running capture of one stream. Handlers must be registered
// before Start. Dispose must be idempotent and safe before Start, and Start
// after Dispose must do nothing.
type Engine interface {
	OnSongChanged(func(capture.Song))
	OnStreamEnded(func())
	OnStreamFailed(func(error))
	Start()
	Dispose()
}

// EngineFactory creates an unstarted engine bound to a stream URL
type EngineFactory func(url string) Engine

// Repository reads stream configurations
type Repository interface {
	ListOwnedStreams(ctx context.Context, userID int64) ([]store.Stream, error)
	// GetOwnedStream returns (nil, nil) when the stream is missing or owned
	// by someone else.
	GetOwnedStream(ctx context.Context, userID, streamID int64) (*store.Stream, error)
}

// SinkResolver turns a stream configuration into its upload function
type SinkResolver interface {
	Resolve(ctx context.Context, stream store.Stream) (sink.UploadFunc, error)
}

// Recorder receives session metrics
type Recorder interface {
	SetActiveSessions(count int)
	RecordSessionStarted()
	RecordSessionStopped(durationSeconds float64)
	RecordSessionTransition(status string)
	RecordStartRejected(reason string)
	RecordSongCaptured(durationSeconds float64, sizeBytes int)
}

// Start rejection reasons
const (
	RejectAlreadyRunning = "already_running"
	RejectNotFound       = "not_found"
	RejectRepository     = "repository_error"
	RejectSinks          = "sink_error"
)

// ManagerFactory hands out user-scoped Managers sharing one Registry
type ManagerFactory struct {
	registry *Registry
	repo     Repository
	resolver SinkResolver
	engines  EngineFactory
	logger   *slog.Logger
	recorder Recorder
	observer Observer
}

// Option configures a ManagerFactory
type Option func(*ManagerFactory)

// WithMetrics reports session metrics to r
func WithMetrics(r Recorder) Option {
	return func(f *ManagerFactory) { f.recorder = r }
}

// WithObserver publishes session events to o
func WithObserver(o Observer) Option {
	return func(f *ManagerFactory) { f.observer = o }
}

// NewManagerFactory creates a factory. It has no side effects.
func NewManagerFactory(registry *Registry, repo Repository, resolver SinkResolver, engines EngineFactory, logger *slog.Logger, opts ...Option) *ManagerFactory {
	f := &ManagerFactory{
		registry: registry,
		repo:     repo,
		resolver: resolver,
		engines:  engines,
		logger:   logger,
		recorder: nopRecorder{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// For returns a Manager acting for user
func (f *ManagerFactory) For(user User) *Manager {
	return &Manager{
		factory: f,
		user:    user,
		logger:  f.logger.With(slog.Int64("user_id", user.ID)),
	}
}

// Registry returns the shared registry
func (f *ManagerFactory) Registry() *Registry {
	return f.registry
}

// Manager starts, stops and reports the sessions of one user
type Manager struct {
	factory *ManagerFactory
	user    User
	logger  *slog.Logger
}

// User returns the user the manager acts for
func (m *Manager) User() User {
	return m.user
}

// Status reports every stream the user has configured. Streams without a
// session are Stopped.
func (m *Manager) Status(ctx context.Context) (map[int64]Status, error) {
	streams, err := m.factory.repo.ListOwnedStreams(ctx, m.user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	result := make(map[int64]Status, len(streams))
	for _, s := range streams {
		status := StatusStopped
		if info, ok := m.factory.registry.Get(s.ID); ok {
			status = info.Status
		}
		result[s.ID] = status
	}
	return result, nil
}

// Sessions returns snapshots of the sessions the user started
func (m *Manager) Sessions() []SessionInfo {
	all := m.factory.registry.All()
	owned := make([]SessionInfo, 0, len(all))
	for _, info := range all {
		if info.Owner == m.user.ID {
			owned = append(owned, info)
		}
	}
	return owned
}

// Start begins capturing streamID. It returns false without changing any
// state when the stream already has a session or is not one of the user's
// streams.
func (m *Manager) Start(ctx context.Context, streamID int64) bool {
	f := m.factory
	logger := m.logger.With(slog.Int64("stream_id", streamID))

	if f.registry.Contains(streamID) {
		logger.Debug("Start rejected, session already exists")
		f.recorder.RecordStartRejected(RejectAlreadyRunning)
		return false
	}

	cfg, err := f.repo.GetOwnedStream(ctx, m.user.ID, streamID)
	if err != nil {
		logger.Error("Failed to load stream configuration", slog.String("error", err.Error()))
		f.recorder.RecordStartRejected(RejectRepository)
		return false
	}
	if cfg == nil {
		logger.Debug("Start rejected, stream not found or not owned")
		f.recorder.RecordStartRejected(RejectNotFound)
		return false
	}

	upload, err := f.resolver.Resolve(ctx, *cfg)
	if err != nil {
		logger.Error("Failed to resolve sinks", slog.String("error", err.Error()))
		f.recorder.RecordStartRejected(RejectSinks)
		return false
	}

	worker := f.engines(cfg.URL)
	sess := NewSession(streamID, m.user.ID, uuid.NewString(), worker)
	logger = logger.With(slog.String("run_id", sess.RunID))

	worker.OnSongChanged(func(song capture.Song) {
		m.handleSong(sess, upload, song, logger)
	})
	worker.OnStreamEnded(func() {
		m.handleTransition(sess, StatusStopped, nil, logger)
	})
	worker.OnStreamFailed(func(err error) {
		m.handleTransition(sess, StatusFail, err, logger)
	})

	// Insert before Start so no event can arrive for a session the registry
	// does not know yet.
	if !f.registry.Insert(streamID, sess) {
		worker.Dispose()
		logger.Debug("Start rejected, lost race for stream")
		f.recorder.RecordStartRejected(RejectAlreadyRunning)
		return false
	}

	f.recorder.RecordSessionStarted()
	f.recorder.SetActiveSessions(f.registry.Count())

	worker.Start()

	// The owner may have stopped the session between Insert and Start. The
	// started event is published under the registry lock so it can never
	// follow the removed event.
	current := f.registry.whileCurrent(streamID, worker, func() {
		f.observer.Publish(newEvent(EventStarted, sess, StatusStarted))
	})
	if !current {
		logger.Debug("Session stopped before it started")
		return false
	}

	logger.Info("Session started",
		slog.String("stream_url", cfg.URL),
		slog.Int("sinks", len(cfg.Sinks)),
	)
	return true
}

// Stop ends the user's session for streamID and removes it. It returns
// false when there is no session or the user did not start it. In-flight
// uploads are not cancelled.
func (m *Manager) Stop(ctx context.Context, streamID int64) bool {
	f := m.factory
	logger := m.logger.With(slog.Int64("stream_id", streamID))

	sess, ok := f.registry.RemoveOwned(streamID, m.user.ID)
	if !ok {
		logger.Debug("Stop rejected, no session owned by user")
		return false
	}

	sess.worker.Dispose()

	uptime := time.Since(sess.StartedAt)
	f.recorder.RecordSessionStopped(uptime.Seconds())
	f.recorder.SetActiveSessions(f.registry.Count())
	f.observer.Publish(newEvent(EventRemoved, sess, StatusStopped))

	logger.Info("Session stopped",
		slog.String("run_id", sess.RunID),
		slog.Duration("uptime", uptime),
	)
	return true
}

func (m *Manager) handleSong(sess *Session, upload sink.UploadFunc, song capture.Song, logger *slog.Logger) {
	f := m.factory

	if _, err := song.Audio.Seek(0, io.SeekStart); err != nil {
		logger.Warn("Failed to rewind song", slog.String("error", err.Error()))
		return
	}
	filename := song.Track.Filename()

	f.registry.recordSong(sess.StreamID, sess.worker)
	f.recorder.RecordSongCaptured(song.Duration.Seconds(), song.Size)

	ev := newEvent(EventSong, sess, StatusStarted)
	ev.Track = song.Track.String()
	f.observer.Publish(ev)

	done, ok := f.registry.trackUpload()
	if !ok {
		logger.Warn("Shutting down, song not uploaded", slog.String("filename", filename))
		return
	}
	go func() {
		defer done()
		if err := upload(context.Background(), song.Audio, filename); err != nil {
			logger.Debug("Upload finished with errors",
				slog.String("filename", filename),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (m *Manager) handleTransition(sess *Session, status Status, cause error, logger *slog.Logger) {
	f := m.factory

	if !f.registry.Transition(sess.StreamID, sess.worker, status) {
		logger.Debug("Dropping event for removed session", slog.String("status", string(status)))
		return
	}
	f.recorder.RecordSessionTransition(string(status))

	eventType := EventEnded
	if status == StatusFail {
		eventType = EventFailed
	}
	ev := newEvent(eventType, sess, status)

	if cause != nil {
		ev.Error = cause.Error()
		logger.Warn("Session failed", slog.String("error", cause.Error()))
	} else {
		logger.Info("Session ended, stream closed by source")
	}
	f.observer.Publish(ev)
}

type nopRecorder struct{}

func (nopRecorder) SetActiveSessions(int)           {}
func (nopRecorder) RecordSessionStarted()           {}
func (nopRecorder) RecordSessionStopped(float64)    {}
func (nopRecorder) RecordSessionTransition(string)  {}
func (nopRecorder) RecordStartRejected(string)      {}
func (nopRecorder) RecordSongCaptured(float64, int) {}
