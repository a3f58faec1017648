package protocol

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestParseMetaInt(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expected    int
		expectError bool
		errorMsg    string
	}{
		{name: "missing header", value: "", expected: 0},
		{name: "valid interval", value: "16000", expected: 16000},
		{name: "whitespace", value: " 8192 ", expected: 8192},
		{name: "not a number", value: "abc", expectError: true, errorMsg: "invalid"},
		{name: "negative", value: "-1", expectError: true, errorMsg: "out of range"},
		{name: "too large", value: "99999999", expectError: true, errorMsg: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set(HeaderMetaInt, tt.value)
			}

			result, err := ParseMetaInt(h)
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name     string
		block    string
		expected map[string]string
	}{
		{
			name:     "title and url",
			block:    "StreamTitle='Daft Punk - One More Time';StreamUrl='http://x';",
			expected: map[string]string{"StreamTitle": "Daft Punk - One More Time", "StreamUrl": "http://x"},
		},
		{
			name:     "nul padding",
			block:    "StreamTitle='A - B';\x00\x00\x00\x00",
			expected: map[string]string{"StreamTitle": "A - B"},
		},
		{
			name:     "quote inside value",
			block:    "StreamTitle='Guns N' Roses - Don't Cry';",
			expected: map[string]string{"StreamTitle": "Guns N' Roses - Don't Cry"},
		},
		{
			name:     "empty title",
			block:    "StreamTitle='';",
			expected: map[string]string{"StreamTitle": ""},
		},
		{
			name:     "missing terminator",
			block:    "StreamTitle='A - B'",
			expected: map[string]string{"StreamTitle": "A - B"},
		},
		{
			name:     "garbage",
			block:    "no key value here",
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseMetadata([]byte(tt.block))
			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %d keys, got %d (%v)", len(tt.expected), len(result), result)
			}
			for k, v := range tt.expected {
				if result[k] != v {
					t.Errorf("Expected %s=%q, got %q", k, v, result[k])
				}
			}
		})
	}
}

func TestSplitStreamTitle(t *testing.T) {
	tests := []struct {
		input  string
		artist string
		title  string
	}{
		{"A - B", "A", "B"},
		{"  Artist Name  -  Song - Remix ", "Artist Name", "Song - Remix"},
		{"Station jingle", "", "Station jingle"},
		{"", "", ""},
	}

	for _, tt := range tests {
		artist, title := SplitStreamTitle(tt.input)
		if artist != tt.artist || title != tt.title {
			t.Errorf("SplitStreamTitle(%q) = (%q, %q), expected (%q, %q)",
				tt.input, artist, title, tt.artist, tt.title)
		}
	}
}

func TestEncodeMetadataRoundTrip(t *testing.T) {
	block := EncodeMetadata("A - B")

	if len(block) != 1+int(block[0])*MetadataBlockUnit {
		t.Fatalf("Block length %d does not match length byte %d", len(block), block[0])
	}

	parsed := ParseMetadata(block[1:])
	if parsed["StreamTitle"] != "A - B" {
		t.Errorf("Expected StreamTitle 'A - B', got %q", parsed["StreamTitle"])
	}
}

// buildStream interleaves audio blocks of metaInt bytes with metadata blocks
func buildStream(metaInt int, blocks [][]byte, titles []string) []byte {
	var buf bytes.Buffer
	for i, audio := range blocks {
		buf.Write(audio[:metaInt])
		if titles[i] == "" {
			buf.WriteByte(0)
			continue
		}
		buf.Write(EncodeMetadata(titles[i]))
	}
	return buf.Bytes()
}

func TestReaderInterleavedMetadata(t *testing.T) {
	metaInt := 32
	blocks := [][]byte{
		bytes.Repeat([]byte{0x01}, metaInt),
		bytes.Repeat([]byte{0x02}, metaInt),
		bytes.Repeat([]byte{0x03}, metaInt),
	}
	titles := []string{"A - B", "", "C - D"}

	r := NewReader(bytes.NewReader(buildStream(metaInt, blocks, titles)), metaInt)

	for i := range blocks {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("Frame %d: unexpected error: %v", i, err)
		}
		if !bytes.Equal(frame.Audio, blocks[i]) {
			t.Errorf("Frame %d: audio mismatch", i)
		}

		title, ok := frame.Title()
		if titles[i] == "" {
			if ok {
				t.Errorf("Frame %d: expected no metadata, got %q", i, title)
			}
			continue
		}
		if !ok || title != titles[i] {
			t.Errorf("Frame %d: expected title %q, got %q (ok=%v)", i, titles[i], title, ok)
		}
	}

	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("Expected io.EOF after last frame, got %v", err)
	}
}

func TestReaderTruncatedStream(t *testing.T) {
	metaInt := 16
	data := bytes.Repeat([]byte{0xFF}, metaInt/2)

	r := NewReader(bytes.NewReader(data), metaInt)
	frame, err := r.ReadFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
	if len(frame.Audio) != metaInt/2 {
		t.Errorf("Expected %d partial audio bytes, got %d", metaInt/2, len(frame.Audio))
	}
}

func TestReaderWithoutMetadata(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)
	r := NewReader(bytes.NewReader(data), 0)

	total := 0
	for {
		frame, err := r.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if frame.HasMetadata {
			t.Error("Expected no metadata without metaint")
		}
		total += len(frame.Audio)
	}

	if total != len(data) {
		t.Errorf("Expected %d audio bytes, got %d", len(data), total)
	}
}
