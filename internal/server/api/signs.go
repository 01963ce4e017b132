package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/lexi/internal/store"
	"github.com/ayusman/lexi/internal/vocabulary"
)

// SignHandler handles HTTP requests for the stored sign vocabulary.
type SignHandler struct {
	store *store.Store

	// OnChange, if set, is called after every successful modification.
	OnChange func()
}

// NewSignHandler creates a new SignHandler with the given store.
func NewSignHandler(s *store.Store) *SignHandler {
	return &SignHandler{store: s}
}

// ServeHTTP routes /api/signs and /api/signs/{id}.
func (h *SignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/signs")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

type signRequest struct {
	Name     string                `json:"name"`
	Curls    []vocabulary.CurlRule `json:"curls"`
	Enabled  *bool                 `json:"enabled"`
	Position *int                  `json:"position"`
}

type signResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Position  int                   `json:"position"`
	Curls     []vocabulary.CurlRule `json:"curls"`
	Enabled   bool                  `json:"enabled"`
	CreatedAt string                `json:"created_at"`
	UpdatedAt string                `json:"updated_at"`
}

type listSignsResponse struct {
	Signs []signResponse `json:"signs"`
	// Version identifies the vocabulary the enabled signs form; empty when
	// they do not form a usable one.
	Version string `json:"version"`
}

func toSignResponse(sg *store.Sign) signResponse {
	return signResponse{
		ID:        sg.ID,
		Name:      sg.Name,
		Position:  sg.Position,
		Curls:     sg.Curls,
		Enabled:   sg.Enabled,
		CreatedAt: sg.CreatedAt.Format(timeFormat),
		UpdatedAt: sg.UpdatedAt.Format(timeFormat),
	}
}

// list handles GET /api/signs.
func (h *SignHandler) list(w http.ResponseWriter, r *http.Request) {
	signs, err := h.store.Signs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list signs")
		return
	}

	response := listSignsResponse{
		Signs: make([]signResponse, 0, len(signs)),
	}
	for _, sg := range signs {
		response.Signs = append(response.Signs, toSignResponse(sg))
	}
	if v, err := h.store.Vocabulary(); err == nil {
		response.Version = v.Version()
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/signs/{id}.
func (h *SignHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sg, err := h.store.Signs().GetByID(id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get sign")
		return
	}

	writeJSON(w, http.StatusOK, toSignResponse(sg))
}

// create handles POST /api/signs. New signs are enabled unless the request
// says otherwise and are appended to the vocabulary.
func (h *SignHandler) create(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	sg := &store.Sign{
		Name:    strings.TrimSpace(req.Name),
		Curls:   req.Curls,
		Enabled: true,
	}
	if req.Enabled != nil {
		sg.Enabled = *req.Enabled
	}
	if err := sg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Signs().Create(sg); err != nil {
		h.writeStoreError(w, err, "Failed to create sign")
		return
	}

	h.changed()
	writeJSON(w, http.StatusCreated, toSignResponse(sg))
}

// update handles PUT /api/signs/{id}. Omitted fields keep their value.
func (h *SignHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	sg, err := h.store.Signs().GetByID(id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get sign")
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		sg.Name = name
	}
	if req.Curls != nil {
		sg.Curls = req.Curls
	}
	if req.Enabled != nil {
		sg.Enabled = *req.Enabled
	}
	if req.Position != nil {
		sg.Position = *req.Position
	}
	if err := sg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Signs().Update(sg); err != nil {
		h.writeStoreError(w, err, "Failed to update sign")
		return
	}

	h.changed()
	writeJSON(w, http.StatusOK, toSignResponse(sg))
}

// delete handles DELETE /api/signs/{id}.
func (h *SignHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Signs().Delete(id); err != nil {
		h.writeStoreError(w, err, "Failed to delete sign")
		return
	}

	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SignHandler) writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Sign not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "Sign name already exists")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *SignHandler) changed() {
	if h.OnChange != nil {
		h.OnChange()
	}
}
