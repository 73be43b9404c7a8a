package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func E(op string, err error, message string, code int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// InvalidInput covers bad or missing uploads, disallowed extensions and
// path traversal attempts.
func InvalidInput(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadRequest)
}

func NotFound(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusNotFound)
}

// Unavailable is returned when an external tool or model server cannot be
// reached, or the job queue cannot take more work.
func Unavailable(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusServiceUnavailable)
}

func Internal(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusInternalServerError)
}

// Code returns the HTTP status carried by err, or 500 when err is not an
// AppError.
func Code(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool {
	return Code(err) == http.StatusNotFound
}

func IsInvalidInput(err error) bool {
	return Code(err) == http.StatusBadRequest
}

func IsUnavailable(err error) bool {
	return Code(err) == http.StatusServiceUnavailable
}
