package transcription

import (
	"context"

	"github.com/nijaru/autoclip/models"
)

// Engine is a speech-to-text backend. Implementations must be safe for
// concurrent use; one instance is shared by every job.
type Engine interface {
	Name() string

	// Transcribe runs the model over a mono 16 kHz wav file.
	Transcribe(ctx context.Context, wavPath string) (*Transcript, error)

	// Check reports whether the backend can currently take work.
	Check(ctx context.Context) error

	Close() error
}

// Transcript is the raw engine output before rounding and policy.
// Duration is zero when the engine cannot report it.
type Transcript struct {
	Language string
	Duration float64
	Segments []models.Segment
}
