package stream

import "time"

// EventType names what happened to a session
type EventType string

const (
	EventStarted EventType = "started"
	EventSong    EventType = "song"
	EventEnded   EventType = "ended"
	EventFailed  EventType = "failed"
	EventRemoved EventType = "removed"
)

// Event describes a session change
type Event struct {
	Type     EventType `json:"type"`
	StreamID int64     `json:"stream_id"`
	Owner    int64     `json:"owner"`
	RunID    string    `json:"run_id"`
	Status   Status    `json:"status"`
	Track    string    `json:"track,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Observer receives session events. Publish is called from engine
// goroutines and request handlers and must not block.
type Observer interface {
	Publish(Event)
}

func newEvent(t EventType, sess *Session, status Status) Event {
	return Event{
		Type:     t,
		StreamID: sess.StreamID,
		Owner:    sess.Owner,
		RunID:    sess.RunID,
		Status:   status,
		Time:     time.Now(),
	}
}

type nopObserver struct{}

func (nopObserver) Publish(Event) {}
