package transcoder

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidRange  = errors.New("clip range must satisfy 0 <= start < end")
	ErrInputNotFound = errors.New("input file not found")
	ErrMissingOutput = errors.New("transcoder produced no output file")
)

// TranscodeError reports a failed ffmpeg or ffprobe invocation. Stderr holds
// the tail of the tool's diagnostic output when there is one.
type TranscodeError struct {
	Op     string
	Path   string
	Err    error
	Stderr string
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s %s: %v (stderr: %s)", e.Op, e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt could succeed. Contract
// violations fail the same way every time.
func (e *TranscodeError) retryable() bool {
	return !errors.Is(e.Err, ErrInvalidRange) && !errors.Is(e.Err, ErrInputNotFound)
}

func newTranscodeError(op, path string, err error, stderr string) *TranscodeError {
	return &TranscodeError{
		Op:     op,
		Path:   path,
		Err:    err,
		Stderr: tail(stderr, 2048),
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
