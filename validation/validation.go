package validation

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/errors"
)

type Validator struct {
	config *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{config: cfg}
}

// ValidateUpload checks an uploaded file's name and size against the
// allow-list before anything touches disk.
func (v *Validator) ValidateUpload(filename string, size int64) error {
	const op = "Validator.ValidateUpload"

	if strings.TrimSpace(filename) == "" {
		return errors.InvalidInput(op, nil, "No file selected")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !v.isAllowedExtension(ext) {
		return errors.InvalidInput(op, nil, fmt.Sprintf("File type %q is not allowed", ext))
	}

	if size == 0 {
		return errors.InvalidInput(op, nil, "Uploaded file is empty")
	}

	if max := v.config.Media.MaxUploadSize; max > 0 && size > max {
		return errors.InvalidInput(op, nil, "Uploaded file is too large")
	}

	return nil
}

// ValidateClipName rejects anything that is not a bare file name.
func (v *Validator) ValidateClipName(name string) error {
	const op = "Validator.ValidateClipName"

	if name == "" {
		return errors.InvalidInput(op, nil, "Clip name is required")
	}
	if strings.Contains(name, "..") {
		return errors.InvalidInput(op, nil, "Invalid clip name")
	}
	if strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return errors.InvalidInput(op, nil, "Invalid clip name")
	}
	if strings.ContainsRune(name, 0) {
		return errors.InvalidInput(op, nil, "Invalid clip name")
	}

	return nil
}

func (v *Validator) isAllowedExtension(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range v.config.Media.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// RequestValidationOpts holds options for request validation
type RequestValidationOpts struct {
	MaxContentLength int64
	AllowedMethods   []string
	RequireMultipart bool
}

// ValidateRequest validates HTTP requests
func (v *Validator) ValidateRequest(r *http.Request, opts RequestValidationOpts) error {
	const op = "Validator.ValidateRequest"

	// Method validation
	if len(opts.AllowedMethods) > 0 {
		methodAllowed := false
		for _, method := range opts.AllowedMethods {
			if r.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			return errors.InvalidInput(op, nil, fmt.Sprintf("Method %s not allowed", r.Method))
		}
	}

	// Content type validation
	if opts.RequireMultipart {
		if contentType := r.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "multipart/form-data") {
			return errors.InvalidInput(op, nil, "Content-Type must be multipart/form-data")
		}
	}

	// Content length validation
	if opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		return errors.InvalidInput(op, nil, "Request body too large")
	}

	return nil
}
