package api

import (
	"net/http"
	"strings"

	"github.com/nijaru/autoclip/storage"
	"github.com/nijaru/autoclip/validation"
)

type ClipResolver interface {
	ResolveClip(name string) (string, error)
}

type ClipHandler struct {
	files     ClipResolver
	validator *validation.Validator
}

func NewClipHandler(files ClipResolver, validator *validation.Validator) *ClipHandler {
	return &ClipHandler{files: files, validator: validator}
}

// ServeHTTP handles GET /clips/{filename}. It is mounted ahead of the mux
// so the raw path is checked before any cleaning or redirect.
func (h *ClipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}); err != nil {
		respondError(w, r, err)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, storage.ClipRoute)
	if err := h.validator.ValidateClipName(name); err != nil {
		respondError(w, r, err)
		return
	}

	path, err := h.files.ResolveClip(name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}
