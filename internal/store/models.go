package store

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned by CRUD methods when a row does not exist or is
// not owned by the calling user.
var ErrNotFound = errors.New("not found")

// Sink kinds
const (
	SinkFTP       = "ftp"
	SinkHTTP      = "http"
	SinkDirectory = "directory"
)

// User owns streams and sinks
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Stream is the configuration of one Internet radio stream
type Stream struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Filter    string    `json:"filter,omitempty"`
	SinkIDs   []int64   `json:"sink_ids"`
	Sinks     []Sink    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the user-editable fields
func (s *Stream) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	if s.Filter != "" {
		if _, err := regexp.Compile("(?i)" + s.Filter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}
	return nil
}

// Sink is an upload destination for captured songs
type Sink struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Host      string    `json:"host,omitempty"`
	Port      int       `json:"port,omitempty"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	Path      string    `json:"path,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the fields required by the sink kind are present
func (s *Sink) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}

	switch s.Kind {
	case SinkFTP:
		if s.Host == "" {
			return errors.New("ftp sink requires host")
		}
		if s.Port < 0 || s.Port > 65535 {
			return fmt.Errorf("invalid port: %d", s.Port)
		}
	case SinkHTTP:
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("http sink requires an http(s) url, got %q", s.URL)
		}
	case SinkDirectory:
		if strings.Contains(s.Path, "..") {
			return fmt.Errorf("directory sink path must not contain '..': %q", s.Path)
		}
	default:
		return fmt.Errorf("unknown sink kind %q (want ftp, http or directory)", s.Kind)
	}
	return nil
}

// Redacted returns a copy without credentials, for API responses
func (s Sink) Redacted() Sink {
	s.Password = ""
	return s
}
