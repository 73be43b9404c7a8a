package transcription

import "fmt"

type TranscriptionError struct {
	Op      string
	Err     error
	Message string
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

func newTranscriptionError(op string, err error, message string) *TranscriptionError {
	return &TranscriptionError{
		Op:      op,
		Err:     err,
		Message: message,
	}
}
