package audio

import (
	"io"
	"testing"
	"time"
)

func TestNewChunker(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{MaxSegmentBytes: 1024})
	if chunker == nil {
		t.Fatal("NewChunker returned nil")
	}

	if !chunker.IsIdle() {
		t.Error("New chunker should be idle")
	}

	if chunker.HasPendingChunk() {
		t.Error("New chunker should not have pending chunk")
	}
}

func TestChunkerDiscardsAudioBeforeFirstTitle(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{})

	chunker.WriteAudio([]byte("orphan"))
	if chunker.HasPendingChunk() {
		t.Error("Audio before the first title should be discarded")
	}
}

func TestChunkerSegmentsOnTitleChange(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{})
	start := time.Now()

	if seg := chunker.ProcessTitle("A - B", start); seg != nil {
		t.Fatal("First title should not produce a segment")
	}

	chunker.WriteAudio([]byte("first "))
	chunker.WriteAudio([]byte("song"))

	// Repeated title is not a boundary
	if seg := chunker.ProcessTitle("A - B", start.Add(time.Second)); seg != nil {
		t.Fatal("Repeated title should not produce a segment")
	}

	seg := chunker.ProcessTitle("C - D", start.Add(3*time.Minute))
	if seg == nil {
		t.Fatal("Expected a segment on title change")
	}

	if seg.Track.Artist != "A" || seg.Track.Title != "B" {
		t.Errorf("Expected track A/B, got %+v", seg.Track)
	}
	if seg.Duration != 3*time.Minute {
		t.Errorf("Expected 3m duration, got %v", seg.Duration)
	}
	if seg.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", seg.Sequence)
	}

	data, err := io.ReadAll(seg.Data)
	if err != nil {
		t.Fatalf("Failed to read segment: %v", err)
	}
	if string(data) != "first song" {
		t.Errorf("Expected 'first song', got %q", data)
	}

	current, ok := chunker.CurrentTrack()
	if !ok || current.Artist != "C" || current.Title != "D" {
		t.Errorf("Expected current track C/D, got %+v (ok=%v)", current, ok)
	}
}

func TestChunkerSkipFirstTrack(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{SkipFirstTrack: true})
	now := time.Now()

	chunker.ProcessTitle("Partial - Song", now)
	chunker.WriteAudio([]byte("tail of a song"))

	if seg := chunker.ProcessTitle("Full - Song", now); seg != nil {
		t.Fatal("Partial first track should be dropped")
	}

	chunker.WriteAudio([]byte("complete"))
	seg := chunker.ProcessTitle("Next - Song", now)
	if seg == nil {
		t.Fatal("Second track should produce a segment")
	}
	if seg.Track.Artist != "Full" {
		t.Errorf("Expected artist 'Full', got %q", seg.Track.Artist)
	}

	stats := chunker.GetStats()
	if stats.SegmentsCreated != 1 || stats.SegmentsDropped != 1 {
		t.Errorf("Expected 1 created and 1 dropped, got %+v", stats)
	}
}

func TestChunkerDropsOversizedAndUndersizedTracks(t *testing.T) {
	tests := []struct {
		name   string
		config ChunkingConfig
		audio  []byte
	}{
		{"oversized", ChunkingConfig{MaxSegmentBytes: 4}, []byte("too large")},
		{"undersized", ChunkingConfig{MinSegmentBytes: 100}, []byte("tiny")},
		{"empty", ChunkingConfig{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker := NewChunker(tt.config)
			now := time.Now()

			chunker.ProcessTitle("A - B", now)
			chunker.WriteAudio(tt.audio)

			if seg := chunker.ProcessTitle("C - D", now); seg != nil {
				t.Errorf("Expected track to be dropped, got segment of %d bytes", seg.Size)
			}
		})
	}
}

func TestChunkerDiscard(t *testing.T) {
	chunker := NewChunker(ChunkingConfig{})

	chunker.ProcessTitle("A - B", time.Now())
	chunker.WriteAudio([]byte("unfinished"))
	chunker.Discard()

	if !chunker.IsIdle() {
		t.Error("Chunker should be idle after Discard")
	}
	if chunker.HasPendingChunk() {
		t.Error("Chunker should have no pending audio after Discard")
	}
}

func TestTrackFilename(t *testing.T) {
	tests := []struct {
		track    Track
		expected string
	}{
		{Track{Artist: "A", Title: "B"}, "A-B.mp3"},
		{Track{Artist: "Daft Punk", Title: "One More Time"}, "Daft Punk-One More Time.mp3"},
		{Track{Title: "Jingle"}, "-Jingle.mp3"},
	}

	for _, tt := range tests {
		if got := tt.track.Filename(); got != tt.expected {
			t.Errorf("Filename(%+v) = %q, expected %q", tt.track, got, tt.expected)
		}
	}
}
