package models

// UploadResponse acknowledges an accepted asynchronous upload
type UploadResponse struct {
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// JobResponse represents the API view of a job
type JobResponse struct {
	ID            string               `json:"id"`
	Filename      string               `json:"filename"`
	Status        Status               `json:"status"`
	Error         string               `json:"error,omitempty"`
	Transcription *TranscriptionResult `json:"transcription,omitempty"`
	Clips         []Clip               `json:"clips"`
}

// NewJobResponse creates a response from a job model
func NewJobResponse(j *Job) *JobResponse {
	clips := j.Clips
	if clips == nil {
		clips = []Clip{}
	}
	return &JobResponse{
		ID:            j.ID,
		Filename:      j.Filename,
		Status:        j.Status,
		Error:         j.Error,
		Transcription: j.Transcription,
		Clips:         clips,
	}
}
