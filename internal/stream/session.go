package stream

import (
	"time"

	"github.com/hooman734/stream-subscription-api/internal/capture"
)

// Status is the reported state of a stream
type Status string

const (
	StatusStarted Status = "started"
	StatusStopped Status = "stopped"
	StatusFail    Status = "fail"
)

// User identifies the caller a Manager acts for
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Session is a registry entry. Fields other than the identifiers are only
// touched under the registry lock.
type Session struct {
	StreamID  int64
	Owner     int64
	RunID     string
	StartedAt time.Time

	worker Engine
	status Status
	songs  int
}

// NewSession creates a session in the Started state owned by owner
func NewSession(streamID, owner int64, runID string, worker Engine) *Session {
	return &Session{
		StreamID:  streamID,
		Owner:     owner,
		RunID:     runID,
		StartedAt: time.Now(),
		worker:    worker,
		status:    StatusStarted,
	}
}

// SessionInfo is a snapshot of a session
type SessionInfo struct {
	StreamID  int64          `json:"stream_id"`
	Owner     int64          `json:"owner"`
	RunID     string         `json:"run_id"`
	Status    Status         `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	Uptime    time.Duration  `json:"uptime"`
	Songs     int            `json:"songs"`
	Engine    *capture.Stats `json:"engine,omitempty"`
}

type statsProvider interface {
	Stats() capture.Stats
}

// info must be called with the registry lock held
func (s *Session) info() SessionInfo {
	return SessionInfo{
		StreamID:  s.StreamID,
		Owner:     s.Owner,
		RunID:     s.RunID,
		Status:    s.status,
		StartedAt: s.StartedAt,
		Uptime:    time.Since(s.StartedAt),
		Songs:     s.songs,
	}
}

// withEngineStats adds engine statistics to a snapshot. Called outside the
// registry lock.
func withEngineStats(info SessionInfo, worker Engine) SessionInfo {
	if sp, ok := worker.(statsProvider); ok {
		stats := sp.Stats()
		info.Engine = &stats
	}
	return info
}
