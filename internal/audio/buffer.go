package audio

import "sync"

// SegmentBuffer accumulates the encoded audio of a single track.
// Once the configured limit is exceeded the buffer drops further data and
// reports itself as overflowed until the next Reset.
type SegmentBuffer struct {
	data     []byte
	maxBytes int
	overflow bool

	// Statistics
	totalWritten uint64
	totalDropped uint64

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Size         int    `json:"size_bytes"`
	MaxBytes     int    `json:"max_bytes"`
	Overflowed   bool   `json:"overflowed"`
	TotalWritten uint64 `json:"total_written"`
	TotalDropped uint64 `json:"total_dropped"`
}

// NewSegmentBuffer creates a buffer holding at most maxBytes.
// A non-positive maxBytes disables the limit.
func NewSegmentBuffer(maxBytes int) *SegmentBuffer {
	initial := 64 * 1024
	if maxBytes > 0 && maxBytes < initial {
		initial = maxBytes
	}

	return &SegmentBuffer{
		data:     make([]byte, 0, initial),
		maxBytes: maxBytes,
	}
}

// Write appends audio bytes. It never fails; data beyond the limit is dropped.
func (b *SegmentBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow {
		b.totalDropped += uint64(len(p))
		return len(p), nil
	}

	if b.maxBytes > 0 && len(b.data)+len(p) > b.maxBytes {
		b.overflow = true
		b.totalDropped += uint64(len(b.data) + len(p))
		b.data = b.data[:0]
		return len(p), nil
	}

	b.data = append(b.data, p...)
	b.totalWritten += uint64(len(p))
	return len(p), nil
}

// Take returns the buffered bytes and resets the buffer.
// The returned slice is owned by the caller.
func (b *SegmentBuffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)

	b.data = b.data[:0]
	b.overflow = false
	return out
}

// Reset discards buffered data and clears the overflow flag
func (b *SegmentBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) > 0 {
		b.totalDropped += uint64(len(b.data))
	}
	b.data = b.data[:0]
	b.overflow = false
}

// Len returns the number of buffered bytes
func (b *SegmentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Overflowed reports whether data was dropped since the last Reset or Take
func (b *SegmentBuffer) Overflowed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.overflow
}

// GetStats returns buffer statistics
func (b *SegmentBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Size:         len(b.data),
		MaxBytes:     b.maxBytes,
		Overflowed:   b.overflow,
		TotalWritten: b.totalWritten,
		TotalDropped: b.totalDropped,
	}
}
