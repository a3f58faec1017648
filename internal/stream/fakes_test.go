package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hooman734/stream-subscription-api/internal/audio"
	"github.com/hooman734/stream-subscription-api/internal/capture"
	"github.com/hooman734/stream-subscription-api/internal/sink"
	"github.com/hooman734/stream-subscription-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records lifecycle calls and lets tests emit events
type fakeEngine struct {
	url string

	mu           sync.Mutex
	songChanged  []func(capture.Song)
	streamEnded  []func()
	streamFailed []func(error)

	starts   atomic.Int32
	disposes atomic.Int32

	// onStart, when set, runs inside Start
	onStart func()
}

func (e *fakeEngine) OnSongChanged(fn func(capture.Song)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.songChanged = append(e.songChanged, fn)
}

func (e *fakeEngine) OnStreamEnded(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamEnded = append(e.streamEnded, fn)
}

func (e *fakeEngine) OnStreamFailed(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streamFailed = append(e.streamFailed, fn)
}

func (e *fakeEngine) Start() {
	e.starts.Add(1)
	if e.onStart != nil {
		e.onStart()
	}
}

func (e *fakeEngine) Dispose() { e.disposes.Add(1) }

func (e *fakeEngine) running() bool {
	return e.starts.Load() > 0 && e.disposes.Load() == 0
}

func (e *fakeEngine) emitSong(artist, title, data string) {
	e.mu.Lock()
	handlers := append([]func(capture.Song){}, e.songChanged...)
	e.mu.Unlock()

	r := bytes.NewReader([]byte(data))
	// Leave the reader at EOF to prove the manager rewinds it.
	io.Copy(io.Discard, r)

	song := capture.Song{
		Audio: r,
		Track: audio.Track{Artist: artist, Title: title},
		Size:  len(data),
	}
	for _, fn := range handlers {
		fn(song)
	}
}

func (e *fakeEngine) emitEnded() {
	e.mu.Lock()
	handlers := append([]func(){}, e.streamEnded...)
	e.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (e *fakeEngine) emitFailed(err error) {
	e.mu.Lock()
	handlers := append([]func(error){}, e.streamFailed...)
	e.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

// engineFactory hands out fake engines and remembers them
type engineFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	onStart func()
}

func (f *engineFactory) create(url string) Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{url: url, onStart: f.onStart}
	f.engines = append(f.engines, e)
	return e
}

func (f *engineFactory) all() []*fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeEngine(nil), f.engines...)
}

func (f *engineFactory) last(t *testing.T) *fakeEngine {
	t.Helper()
	all := f.all()
	if len(all) == 0 {
		t.Fatal("no engine was created")
	}
	return all[len(all)-1]
}

// fakeRepo serves streams from memory
type fakeRepo struct {
	mu      sync.Mutex
	streams map[int64]store.Stream
	err     error
	// barrier, when set, makes GetOwnedStream wait until that many calls
	// are in flight.
	barrier *sync.WaitGroup
}

func newFakeRepo(streams ...store.Stream) *fakeRepo {
	r := &fakeRepo{streams: make(map[int64]store.Stream)}
	for _, s := range streams {
		r.streams[s.ID] = s
	}
	return r
}

func (r *fakeRepo) ListOwnedStreams(_ context.Context, userID int64) ([]store.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []store.Stream
	for _, s := range r.streams {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetOwnedStream(_ context.Context, userID, streamID int64) (*store.Stream, error) {
	if r.barrier != nil {
		r.barrier.Done()
		r.barrier.Wait()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.streams[streamID]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return &s, nil
}

type uploadCall struct {
	streamID int64
	filename string
	content  string
}

// fakeResolver records every upload
type fakeResolver struct {
	err     error
	calls   chan uploadCall
	block   chan struct{} // when set, uploads wait for it to close
	resolve atomic.Int32
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{calls: make(chan uploadCall, 16)}
}

func (r *fakeResolver) Resolve(_ context.Context, s store.Stream) (sink.UploadFunc, error) {
	r.resolve.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return func(ctx context.Context, content io.Reader, filename string) error {
		if r.block != nil {
			<-r.block
		}
		data, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		r.calls <- uploadCall{streamID: s.ID, filename: filename, content: string(data)}
		return errors.New("sink unavailable")
	}, nil
}

func (r *fakeResolver) next(t *testing.T) uploadCall {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload")
		return uploadCall{}
	}
}

func (r *fakeResolver) expectNoMore(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected upload: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

// recordingObserver collects published events
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Publish(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, 0, len(o.events))
	for _, ev := range o.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingRecorder counts metric calls
type countingRecorder struct {
	mu         sync.Mutex
	started    int
	stopped    int
	rejections map[string]int
	songs      int
	active     int
}

func (r *countingRecorder) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func (r *countingRecorder) RecordSessionStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) RecordSessionStopped(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *countingRecorder) RecordSessionTransition(string) {}

func (r *countingRecorder) RecordStartRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejections == nil {
		r.rejections = make(map[string]int)
	}
	r.rejections[reason]++
}

func (r *countingRecorder) RecordSongCaptured(float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.songs++
}
