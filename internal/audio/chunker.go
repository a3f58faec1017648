package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/hooman734/stream-subscription-api/internal/protocol"
)

// ChunkState represents the current state of the segmentation process
type ChunkState int

const (
	StateIdle       ChunkState = iota // No title announced yet
	StateCollecting                   // Buffering audio for the current track
)

// Track identifies a song announced by the stream
type Track struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// TrackFromStreamTitle builds a Track from an ICY StreamTitle value
func TrackFromStreamTitle(streamTitle string) Track {
	artist, title := protocol.SplitStreamTitle(streamTitle)
	return Track{Artist: artist, Title: title}
}

// String returns "Artist - Title"
func (t Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + protocol.TitleSeparator + t.Title
}

// Filename returns the upload name for the track: "{artist}-{title}.mp3"
func (t Track) Filename() string {
	return fmt.Sprintf("%s-%s.mp3", t.Artist, t.Title)
}

// Segment is the complete audio of one track
type Segment struct {
	Track     Track
	Data      *bytes.Reader
	Size      int
	Sequence  uint64
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// ChunkingConfig contains configuration for the segmentation process
type ChunkingConfig struct {
	MaxSegmentBytes int  // Tracks larger than this are dropped
	MinSegmentBytes int  // Tracks smaller than this are dropped
	SkipFirstTrack  bool // The track playing at connect time is incomplete
}

// Chunker cuts the audio stream into per-track segments on title changes
type Chunker struct {
	config ChunkingConfig
	state  ChunkState
	buffer *SegmentBuffer

	current      Track
	currentTitle string
	trackStart   time.Time
	partial      bool
	sequence     uint64

	// Statistics
	segmentsCreated uint64
	segmentsDropped uint64
	totalBytes      uint64

	mu sync.RWMutex
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	State           string `json:"state"`
	CurrentTrack    string `json:"current_track,omitempty"`
	CurrentSize     int    `json:"current_size_bytes"`
	SegmentsCreated uint64 `json:"segments_created"`
	SegmentsDropped uint64 `json:"segments_dropped"`
	TotalBytes      uint64 `json:"total_bytes"`
}

// NewChunker creates a new track chunker
func NewChunker(config ChunkingConfig) *Chunker {
	return &Chunker{
		config: config,
		state:  StateIdle,
		buffer: NewSegmentBuffer(config.MaxSegmentBytes),
	}
}

// WriteAudio buffers audio for the current track. Audio received before the
// first title is discarded since it cannot be attributed to a track.
func (c *Chunker) WriteAudio(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle || len(p) == 0 {
		return
	}
	c.buffer.Write(p)
}

// ProcessTitle handles a StreamTitle announcement. When the title differs from
// the current one, the current track is finalized and returned (nil if it was
// dropped or there was none) and a new track begins.
func (c *Chunker) ProcessTitle(streamTitle string, now time.Time) *Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCollecting && streamTitle == c.currentTitle {
		return nil
	}

	var segment *Segment
	if c.state == StateCollecting {
		segment = c.finalizeSegment(now)
	}

	c.startTrack(streamTitle, now)
	return segment
}

// startTrack begins buffering a new track. Must be called with c.mu held.
func (c *Chunker) startTrack(streamTitle string, now time.Time) {
	c.partial = c.state == StateIdle && c.config.SkipFirstTrack
	c.state = StateCollecting
	c.currentTitle = streamTitle
	c.current = TrackFromStreamTitle(streamTitle)
	c.trackStart = now
	c.buffer.Reset()
}

// finalizeSegment cuts the buffered track. Must be called with c.mu held.
func (c *Chunker) finalizeSegment(now time.Time) *Segment {
	overflowed := c.buffer.Overflowed()
	data := c.buffer.Take()

	if c.partial || overflowed || len(data) == 0 || len(data) < c.config.MinSegmentBytes {
		c.segmentsDropped++
		return nil
	}

	c.sequence++
	c.segmentsCreated++
	c.totalBytes += uint64(len(data))

	return &Segment{
		Track:     c.current,
		Data:      bytes.NewReader(data),
		Size:      len(data),
		Sequence:  c.sequence,
		StartTime: c.trackStart,
		EndTime:   now,
		Duration:  now.Sub(c.trackStart),
	}
}

// Discard drops the track in progress, e.g. when the stream ends mid-song
func (c *Chunker) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCollecting && c.buffer.Len() > 0 {
		c.segmentsDropped++
	}
	c.buffer.Reset()
	c.state = StateIdle
	c.currentTitle = ""
	c.current = Track{}
}

// CurrentTrack returns the track being buffered, if any
func (c *Chunker) CurrentTrack() (Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.state == StateCollecting
}

// HasPendingChunk returns true if audio is buffered for the current track
func (c *Chunker) HasPendingChunk() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateCollecting && c.buffer.Len() > 0
}

// IsIdle returns true if no title has been announced yet
func (c *Chunker) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateIdle
}

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := "idle"
	if c.state == StateCollecting {
		state = "collecting"
	}

	return ChunkerStats{
		State:           state,
		CurrentTrack:    c.current.String(),
		CurrentSize:     c.buffer.Len(),
		SegmentsCreated: c.segmentsCreated,
		SegmentsDropped: c.segmentsDropped,
		TotalBytes:      c.totalBytes,
	}
}
