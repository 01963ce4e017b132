package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/echocat/slf4g"

	"github.com/ayusman/lexi/internal/model"
	"github.com/ayusman/lexi/internal/session"
)

// SessionController is the part of session.Session the API drives.
type SessionController interface {
	Start(ctx context.Context) error
	Pause()
	Resume()
	Stop() error
	Clear()
	Reload() error
	Snapshot() session.Snapshot
}

// SessionHandler exposes the translation session over HTTP.
//
//	GET  /api/session           current snapshot
//	POST /api/session/{action}  start, pause, resume, stop, clear or reload
//
// Every successful call answers with the snapshot after the action.
type SessionHandler struct {
	session SessionController
}

// NewSessionHandler creates a SessionHandler for s.
func NewSessionHandler(s SessionController) *SessionHandler {
	return &SessionHandler{session: s}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/session")
	action = strings.Trim(action, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, h.session.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var err error
	switch action {
	case "start":
		err = h.session.Start(r.Context())
	case "pause":
		h.session.Pause()
	case "resume":
		h.session.Resume()
	case "stop":
		err = h.session.Stop()
	case "clear":
		h.session.Clear()
	case "reload":
		err = h.session.Reload()
	default:
		writeError(w, http.StatusNotFound, "Unknown session action")
		return
	}

	if err != nil {
		log.WithError(err).
			With("action", action).
			Warn("Session action failed.")
		writeError(w, sessionErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrLoad), errors.Is(err, session.ErrFrameSource):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
