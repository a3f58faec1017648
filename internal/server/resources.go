package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hooman734/stream-subscription-api/internal/store"
)

type userRequest struct {
	Name string `json:"name"`
}

type streamRequest struct {
	Name    string  `json:"name"`
	URL     string  `json:"url"`
	Filter  string  `json:"filter"`
	SinkIDs []int64 `json:"sink_ids"`
}

func (req streamRequest) toStream(userID int64) *store.Stream {
	return &store.Stream{
		UserID:  userID,
		Name:    strings.TrimSpace(req.Name),
		URL:     strings.TrimSpace(req.URL),
		Filter:  req.Filter,
		SinkIDs: req.SinkIDs,
	}
}

type sinkRequest struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

func (h *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.deps.Store.CreateUser(r.Context(), name)
	if err != nil {
		h.serverError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (h *HTTPServer) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := h.deps.Store.ListOwnedStreams(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		h.serverError(w, "list streams", err)
		return
	}
	if streams == nil {
		streams = []store.Stream{}
	}
	writeJSON(w, http.StatusOK, streams)
}

func (h *HTTPServer) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	st, err := h.deps.Store.GetOwnedStream(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		h.serverError(w, "get stream", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *HTTPServer) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st := req.toStream(userFrom(r.Context()).ID)
	if err := st.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.deps.Store.CreateStream(r.Context(), st)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.serverError(w, "create stream", err)
	default:
		writeJSON(w, http.StatusCreated, st)
	}
}

// handleUpdateStream edits a stream. A running session keeps recording with
// the configuration it was started with until it is restarted.
func (h *HTTPServer) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st := req.toStream(userFrom(r.Context()).ID)
	st.ID = id
	if err := st.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.deps.Store.UpdateStream(r.Context(), st)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		h.serverError(w, "update stream", err)
	default:
		updated, err := h.deps.Store.GetOwnedStream(r.Context(), st.UserID, id)
		if err != nil || updated == nil {
			writeJSON(w, http.StatusOK, st)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// handleDeleteStream stops the stream's session, if any, then deletes it
func (h *HTTPServer) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	user := userFrom(r.Context())
	st, err := h.deps.Store.GetOwnedStream(r.Context(), user.ID, id)
	if err != nil {
		h.serverError(w, "delete stream", err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	h.deps.Sessions.For(user).Stop(r.Context(), id)

	err = h.deps.Store.DeleteStream(r.Context(), user.ID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "stream not found")
	case err != nil:
		h.serverError(w, "delete stream", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *HTTPServer) handleListSinks(w http.ResponseWriter, r *http.Request) {
	sinks, err := h.deps.Store.ListSinks(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		h.serverError(w, "list sinks", err)
		return
	}

	out := make([]store.Sink, 0, len(sinks))
	for _, k := range sinks {
		out = append(out, k.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPServer) handleGetSink(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sink id")
		return
	}

	k, err := h.deps.Store.GetSink(r.Context(), userFrom(r.Context()).ID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "sink not found")
	case err != nil:
		h.serverError(w, "get sink", err)
	default:
		writeJSON(w, http.StatusOK, k.Redacted())
	}
}

func (h *HTTPServer) handleCreateSink(w http.ResponseWriter, r *http.Request) {
	var req sinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	k := &store.Sink{
		UserID:   userFrom(r.Context()).ID,
		Kind:     strings.ToLower(strings.TrimSpace(req.Kind)),
		Name:     strings.TrimSpace(req.Name),
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Path:     req.Path,
		URL:      req.URL,
	}
	if err := k.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Store.CreateSink(r.Context(), k); err != nil {
		h.serverError(w, "create sink", err)
		return
	}
	writeJSON(w, http.StatusCreated, k.Redacted())
}

func (h *HTTPServer) handleDeleteSink(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sink id")
		return
	}

	err := h.deps.Store.DeleteSink(r.Context(), userFrom(r.Context()).ID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "sink not found")
	case err != nil:
		h.serverError(w, "delete sink", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *HTTPServer) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("Request failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
