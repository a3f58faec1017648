package protocol

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Protocol constants
const (
	// Request header asking the server to interleave metadata blocks
	HeaderMetaData = "Icy-MetaData"
	// Response header carrying the number of audio bytes between metadata blocks
	HeaderMetaInt = "Icy-Metaint"
	// Response header with the station name
	HeaderName = "Icy-Name"

	// Metadata length byte is multiplied by this factor
	MetadataBlockUnit = 16
	// Largest metadata block a single length byte can describe (255 * 16)
	MaxMetadataSize = 255 * MetadataBlockUnit
	// Upper bound accepted for icy-metaint
	MaxMetaInt = 1 << 20

	// Audio read size when the server does not interleave metadata
	DefaultFrameSize = 8192

	// Separator between artist and title inside StreamTitle
	TitleSeparator = " - "
)

// Frame is one unit read from an ICY stream: the audio bytes that preceded a
// metadata block, and the block itself if one was present.
type Frame struct {
	Audio       []byte
	Metadata    map[string]string // Only set when HasMetadata is true
	HasMetadata bool
}

// Title returns the StreamTitle value of the frame metadata
func (f *Frame) Title() (string, bool) {
	if !f.HasMetadata {
		return "", false
	}
	title, ok := f.Metadata["StreamTitle"]
	return title, ok
}

// ParseMetaInt extracts the metadata interval from response headers.
// Zero means the server does not interleave metadata.
func ParseMetaInt(h http.Header) (int, error) {
	raw := strings.TrimSpace(h.Get(HeaderMetaInt))
	if raw == "" {
		return 0, nil
	}

	metaInt, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s header %q: %w", HeaderMetaInt, raw, err)
	}

	if metaInt < 0 || metaInt > MaxMetaInt {
		return 0, fmt.Errorf("%s out of range: %d (max %d)", HeaderMetaInt, metaInt, MaxMetaInt)
	}

	return metaInt, nil
}

// Reader splits an ICY response body into frames
type Reader struct {
	r       *bufio.Reader
	metaInt int
	audio   []byte
	meta    []byte
}

// NewReader creates a frame reader for a body with the given metadata interval
func NewReader(r io.Reader, metaInt int) *Reader {
	size := metaInt
	if size <= 0 {
		size = DefaultFrameSize
	}

	return &Reader{
		r:       bufio.NewReaderSize(r, 16*1024),
		metaInt: metaInt,
		audio:   make([]byte, size),
		meta:    make([]byte, MaxMetadataSize),
	}
}

// MetaInt returns the metadata interval the reader was created with
func (r *Reader) MetaInt() int {
	return r.metaInt
}

// ReadFrame reads the next frame. The returned audio slice is only valid until
// the next call. io.EOF is returned when the stream ended on a frame boundary;
// a stream cut mid-frame yields the partial audio together with io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (Frame, error) {
	if r.metaInt <= 0 {
		n, err := r.r.Read(r.audio)
		if n > 0 {
			return Frame{Audio: r.audio[:n]}, nil
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return Frame{}, err
	}

	n, err := io.ReadFull(r.r, r.audio)
	if err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{Audio: r.audio[:n]}, err
	}

	lengthByte, err := r.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			// Stream ended exactly after an audio block
			return Frame{Audio: r.audio[:n]}, nil
		}
		return Frame{Audio: r.audio[:n]}, fmt.Errorf("failed to read metadata length: %w", err)
	}

	frame := Frame{Audio: r.audio[:n]}
	metaLen := int(lengthByte) * MetadataBlockUnit
	if metaLen == 0 {
		return frame, nil
	}

	if _, err := io.ReadFull(r.r, r.meta[:metaLen]); err != nil {
		return frame, fmt.Errorf("failed to read metadata block (%d bytes): %w", metaLen, err)
	}

	frame.Metadata = ParseMetadata(r.meta[:metaLen])
	frame.HasMetadata = true

	return frame, nil
}

// ParseMetadata parses a metadata block of the form
// StreamTitle='Artist - Title';StreamUrl='';
// Trailing NUL padding is ignored. Values may contain semicolons and quotes;
// a value ends at the first "';" sequence or the end of the block.
func ParseMetadata(block []byte) map[string]string {
	text := strings.TrimRight(string(block), "\x00")
	result := make(map[string]string)

	for len(text) > 0 {
		eq := strings.Index(text, "=")
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(strings.TrimLeft(text[:eq], ";"))
		rest := text[eq+1:]

		var value string
		if strings.HasPrefix(rest, "'") {
			rest = rest[1:]
			end := strings.Index(rest, "';")
			if end < 0 {
				value = strings.TrimSuffix(rest, "'")
				rest = ""
			} else {
				value = rest[:end]
				rest = rest[end+2:]
			}
		} else {
			end := strings.Index(rest, ";")
			if end < 0 {
				value = rest
				rest = ""
			} else {
				value = rest[:end]
				rest = rest[end+1:]
			}
		}

		if key != "" {
			result[key] = value
		}
		text = rest
	}

	return result
}

// EncodeMetadata builds a padded metadata block (length byte included) for the
// given StreamTitle. Used by test servers and tools that re-broadcast streams.
func EncodeMetadata(streamTitle string) []byte {
	body := fmt.Sprintf("StreamTitle='%s';", streamTitle)
	blocks := (len(body) + MetadataBlockUnit - 1) / MetadataBlockUnit
	if blocks > 255 {
		blocks = 255
		body = body[:MaxMetadataSize]
	}

	out := make([]byte, 1+blocks*MetadataBlockUnit)
	out[0] = byte(blocks)
	copy(out[1:], body)
	return out
}

// SplitStreamTitle splits "Artist - Title" into its parts. A title without the
// separator is returned as the title with an empty artist.
func SplitStreamTitle(streamTitle string) (artist, title string) {
	streamTitle = strings.TrimSpace(streamTitle)
	idx := strings.Index(streamTitle, TitleSeparator)
	if idx < 0 {
		return "", streamTitle
	}

	artist = strings.TrimSpace(streamTitle[:idx])
	title = strings.TrimSpace(streamTitle[idx+len(TitleSeparator):])
	return artist, title
}
