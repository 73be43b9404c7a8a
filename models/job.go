package models

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusCreated      Status = "created"
	StatusExtracting   Status = "extracting"
	StatusTranscribing Status = "transcribing"
	StatusClipping     Status = "clipping"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// ActiveStatuses are the states a job can be left in when the process dies.
var ActiveStatuses = []Status{
	StatusCreated,
	StatusExtracting,
	StatusTranscribing,
	StatusClipping,
}

type Job struct {
	ID            string               `json:"id"`
	Filename      string               `json:"filename"`
	SourcePath    string               `json:"-"`
	AudioPath     string               `json:"-"`
	Status        Status               `json:"status"`
	Error         string               `json:"error,omitempty"`
	Transcription *TranscriptionResult `json:"transcription,omitempty"`
	Clips         []Clip               `json:"clips"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Clip is one generated file, cut from the segment at Index.
type Clip struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Filename  string  `json:"filename"`
	URL       string  `json:"url"`
	RemoteURL string  `json:"remote_url,omitempty"`
}

// Status check methods
func (j *Job) IsCompleted() bool { return j.Status == StatusCompleted }
func (j *Job) IsFailed() bool    { return j.Status == StatusFailed }
func (j *Job) IsTerminal() bool  { return IsTerminal(j.Status) }

// IsStale checks if the job has been stuck in an active stage for too long
func (j *Job) IsStale(timeout time.Duration) bool {
	if IsTerminal(j.Status) {
		return false
	}
	return time.Since(j.UpdatedAt) > timeout
}

// Transition moves the job to the next state, rejecting edges the
// lifecycle does not allow.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	return nil
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition enforces the allowed job state machine edges.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusExtracting || to == StatusFailed || to == StatusCancelled
	case StatusExtracting:
		return to == StatusTranscribing || to == StatusFailed || to == StatusCancelled
	case StatusTranscribing:
		return to == StatusClipping || to == StatusFailed || to == StatusCancelled
	case StatusClipping:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}
