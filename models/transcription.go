package models

// Segment is a timed span of transcript text. Times are in seconds.
type Segment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

type TranscriptionResult struct {
	Language       string    `json:"language"`
	Duration       float64   `json:"duration"`
	FullTranscript string    `json:"full_transcript"`
	Segments       []Segment `json:"segments"`
}
