package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds every live session in the process, keyed by stream ID.
// It is safe for concurrent use by any number of Managers.
type Registry struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger

	// In-flight song uploads. Stop never cancels them; Shutdown waits.
	uploads sync.WaitGroup
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Contains reports whether a session exists for id
func (r *Registry) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Get returns a snapshot of the session for id
func (r *Registry) Get(id int64) (SessionInfo, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.RUnlock()
		return SessionInfo{}, false
	}
	info, worker := s.info(), s.worker
	r.mu.RUnlock()

	return withEngineStats(info, worker), true
}

// Set stores s under id, replacing any existing session, and returns the
// session it replaced. The caller owns disposal of the replaced worker.
// Start uses Insert instead so that two workers never share an ID.
func (r *Registry) Set(id int64, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	prev := r.sessions[id]
	r.sessions[id] = s
	return prev
}

// Insert stores s under id only if no session exists for id
func (r *Registry) Insert(id int64, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, exists := r.sessions[id]; exists {
		return false
	}
	r.sessions[id] = s
	return true
}

// Remove deletes the session for id and returns it
func (r *Registry) Remove(id int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// RemoveOwned deletes the session for id only if owner started it
func (r *Registry) RemoveOwned(id, owner int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Owner != owner {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

// Transition sets the status of the session for id, provided that session
// is still the one running worker. Events from a removed or replaced worker
// are dropped.
func (r *Registry) Transition(id int64, worker Engine, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.worker != worker {
		return false
	}
	s.status = status
	return true
}

func (r *Registry) recordSong(id int64, worker Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok && s.worker == worker {
		s.songs++
	}
}

// All returns snapshots of every session ordered by stream ID
func (r *Registry) All() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	workers := make([]Engine, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.info())
		workers = append(workers, s.worker)
	}
	r.mu.RUnlock()

	for i := range infos {
		infos[i] = withEngineStats(infos[i], workers[i])
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].StreamID < infos[j].StreamID })
	return infos
}

// Count returns the number of sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CountByStatus returns the number of sessions in each status
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[Status]int{StatusStarted: 0, StatusStopped: 0, StatusFail: 0}
	for _, s := range r.sessions {
		counts[s.status]++
	}
	return counts
}

// trackUpload registers an in-flight upload; call the returned func when it
// finishes. It reports false once Shutdown has begun, since Shutdown may
// already be waiting on the upload group.
func (r *Registry) trackUpload() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	r.uploads.Add(1)
	return r.uploads.Done, true
}

// whileCurrent runs fn under the registry lock if worker still holds id.
// fn must not block or call back into the registry.
func (r *Registry) whileCurrent(id int64, worker Engine, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.worker != worker {
		return false
	}
	fn()
	return true
}

// Shutdown disposes every session, rejects further inserts and waits for
// in-flight uploads until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	r.logger.Info("Shutting down capture sessions", slog.Int("sessions", len(sessions)))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.worker.Dispose()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		r.uploads.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("All capture sessions stopped and uploads finished")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions and uploads: %w", ctx.Err())
	}
}
