package models

import "time"

type EventKind string

const (
	EventProcessingStart  EventKind = "processing_start"
	EventClipProgress     EventKind = "clip_progress"
	EventClipComplete     EventKind = "clip_complete"
	EventProcessingFailed EventKind = "processing_failed"
)

// Event is one progress notification for a job. Seq increases by one per
// job in emission order.
type Event struct {
	Kind      EventKind `json:"event"`
	JobID     string    `json:"job_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Kind == EventClipComplete || e.Kind == EventProcessingFailed
}

type StartData struct {
	Filename string `json:"filename"`
}

type ClipProgressData struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Text        string `json:"text"`
	ClipCreated bool   `json:"clip_created"`
	Clip        *Clip  `json:"clip,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ClipCompleteData struct {
	Clips         []Clip               `json:"clips"`
	Transcription *TranscriptionResult `json:"transcription"`
}

type FailedData struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}
