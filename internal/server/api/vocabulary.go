package api

import (
	"bytes"
	"net/http"

	log "github.com/echocat/slf4g"

	"github.com/ayusman/lexi/internal/store"
	"github.com/ayusman/lexi/internal/vocabulary"
)

// VersionHeader carries the vocabulary version on /api/vocabulary responses.
const VersionHeader = "X-Vocabulary-Version"

const maxVocabularySize = 1 << 20

// VocabularyHandler exports and imports the whole vocabulary as YAML.
type VocabularyHandler struct {
	store *store.Store

	// OnChange, if set, is called after the vocabulary was replaced.
	OnChange func()
}

// NewVocabularyHandler creates a VocabularyHandler for s.
func NewVocabularyHandler(s *store.Store) *VocabularyHandler {
	return &VocabularyHandler{store: s}
}

// ServeHTTP handles GET and PUT on /api/vocabulary.
func (h *VocabularyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.export(w)
	case http.MethodPut:
		h.replace(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *VocabularyHandler) export(w http.ResponseWriter) {
	v, err := h.store.Vocabulary()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeYAML(w, http.StatusOK, v)
}

func (h *VocabularyHandler) replace(w http.ResponseWriter, r *http.Request) {
	v, err := vocabulary.Decode(http.MaxBytesReader(w, r.Body, maxVocabularySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.ReplaceVocabulary(v); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store vocabulary")
		return
	}

	log.With("signs", len(v.Descriptors)).
		With("version", v.Version()).
		Info("Vocabulary replaced.")
	if h.OnChange != nil {
		h.OnChange()
	}
	h.writeYAML(w, http.StatusOK, v)
}

func (h *VocabularyHandler) writeYAML(w http.ResponseWriter, status int, v *vocabulary.Vocabulary) {
	var buf bytes.Buffer
	if err := v.Encode(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode vocabulary")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set(VersionHeader, v.Version())
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
