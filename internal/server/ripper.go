package server

import (
	"log/slog"
	"net/http"
)

// handleRipperStatus reports the status of every stream the caller owns,
// plus details of the sessions currently registered for them.
func (h *HTTPServer) handleRipperStatus(w http.ResponseWriter, r *http.Request) {
	m := h.deps.Sessions.For(userFrom(r.Context()))

	statuses, err := m.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load streams")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": statuses,
		"sessions": m.Sessions(),
	})
}

// handleRipperStart starts recording. A refused start (already running,
// not owned, or a broken configuration) is reported as started=false.
func (h *HTTPServer) handleRipperStart(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	started := h.deps.Sessions.For(userFrom(r.Context())).Start(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"stream_id": id,
		"started":   started,
	})
}

// handleRipperStop stops recording. Stopping a stream that is not
// registered, or not the caller's, reports stopped=false.
func (h *HTTPServer) handleRipperStop(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stream id")
		return
	}

	stopped := h.deps.Sessions.For(userFrom(r.Context())).Stop(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"stream_id": id,
		"stopped":   stopped,
	})
}

// handleRipperEvents upgrades to a websocket that streams the caller's
// session events.
func (h *HTTPServer) handleRipperEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		writeError(w, http.StatusNotFound, "event feed disabled")
		return
	}

	user := userFrom(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.logger.Debug("Event client connected",
		slog.Int64("user_id", user.ID),
		slog.String("remote_addr", r.RemoteAddr),
	)
	h.deps.Events.Serve(conn, user.ID, h.deps.Sessions.For(user).Sessions())
	h.logger.Debug("Event client disconnected", slog.Int64("user_id", user.ID))
}
