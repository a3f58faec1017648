package audio

import (
	"bytes"
	"testing"
)

func TestSegmentBufferWriteAndTake(t *testing.T) {
	buf := NewSegmentBuffer(1024)

	buf.Write([]byte("hello "))
	buf.Write([]byte("world"))

	if buf.Len() != 11 {
		t.Errorf("Expected 11 bytes, got %d", buf.Len())
	}

	data := buf.Take()
	if string(data) != "hello world" {
		t.Errorf("Expected 'hello world', got %q", data)
	}

	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after Take, got %d bytes", buf.Len())
	}

	// Taken slice must not alias the internal storage
	buf.Write([]byte("XXXXX"))
	if string(data) != "hello world" {
		t.Errorf("Taken data was modified by a later write: %q", data)
	}
}

func TestSegmentBufferOverflow(t *testing.T) {
	buf := NewSegmentBuffer(8)

	buf.Write([]byte("12345"))
	if buf.Overflowed() {
		t.Fatal("Buffer should not overflow below the limit")
	}

	buf.Write([]byte("6789"))
	if !buf.Overflowed() {
		t.Fatal("Buffer should overflow above the limit")
	}
	if buf.Len() != 0 {
		t.Errorf("Overflowed buffer should hold no data, got %d bytes", buf.Len())
	}

	buf.Write([]byte("more"))
	stats := buf.GetStats()
	if stats.TotalDropped != 13 {
		t.Errorf("Expected 13 dropped bytes, got %d", stats.TotalDropped)
	}

	buf.Reset()
	if buf.Overflowed() {
		t.Error("Reset should clear the overflow flag")
	}
}

func TestSegmentBufferUnlimited(t *testing.T) {
	buf := NewSegmentBuffer(0)
	payload := bytes.Repeat([]byte{0x01}, 256*1024)

	buf.Write(payload)
	if buf.Overflowed() {
		t.Error("Unlimited buffer should never overflow")
	}
	if buf.Len() != len(payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), buf.Len())
	}
}
