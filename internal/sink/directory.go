package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirectorySink writes songs into a local directory
type DirectorySink struct {
	dir string
}

// NewDirectorySink creates a sink writing into sub below root. sub cannot
// escape root.
func NewDirectorySink(root, sub string) *DirectorySink {
	return &DirectorySink{dir: filepath.Join(root, filepath.Clean(string(filepath.Separator)+sub))}
}

// Kind implements Sink
func (s *DirectorySink) Kind() string { return SinkKindDirectory }

// Dir returns the target directory
func (s *DirectorySink) Dir() string { return s.dir }

// Upload implements Sink. The file appears atomically under its final name.
func (s *DirectorySink) Upload(ctx context.Context, filename string, content io.Reader) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: content}); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filename, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, filename)); err != nil {
		return fmt.Errorf("rename %s: %w", filename, err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
