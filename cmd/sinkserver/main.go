// Command sinkserver is a development receiver for HTTP sinks. It accepts
// the multipart uploads the ripper sends and stores them in a directory.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hooman734/stream-subscription-api/internal/sink"
)

type uploadResponse struct {
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

type receiver struct {
	dir      string
	username string
	password string
	logger   *slog.Logger
}

func (rc *receiver) handleUpload(w http.ResponseWriter, r *http.Request) {
	if rc.username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != rc.username || pass != rc.password {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := sink.SanitizeFilename(header.Filename)
	out, err := os.Create(filepath.Join(rc.dir, name))
	if err != nil {
		http.Error(w, "Error storing file", http.StatusInternalServerError)
		return
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		http.Error(w, "Error storing file", http.StatusInternalServerError)
		return
	}

	rc.logger.Info("Upload received",
		slog.String("filename", name),
		slog.Int64("size_bytes", size),
		slog.String("declared_size", r.FormValue("size_bytes")),
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(uploadResponse{
		Filename:   name,
		SizeBytes:  size,
		ReceivedAt: time.Now().UTC(),
	})
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	dir := flag.String("dir", "received", "Directory uploads are written to")
	username := flag.String("user", "", "Require basic auth with this user")
	password := flag.String("pass", "", "Basic auth password")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		logger.Error("Failed to create upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rc := &receiver{dir: *dir, username: *username, password: *password, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post("/upload", rc.handleUpload)

	logger.Info("Sink server starting",
		slog.String("address", *addr),
		slog.String("endpoint", "/upload"),
		slog.String("dir", *dir),
	)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
