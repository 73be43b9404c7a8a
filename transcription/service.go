package transcription

import (
	"context"
	"os"
	"strings"

	"github.com/nijaru/autoclip/errors"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/utils"
	"github.com/sirupsen/logrus"
)

// AudioPreparer is the part of the transcoder the service depends on.
type AudioPreparer interface {
	NormalizeAudio(ctx context.Context, audioPath string) (string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Service struct {
	engine Engine
	audio  AudioPreparer
	policy Policy
	logger *logrus.Logger
}

func NewService(engine Engine, audio AudioPreparer, policy Policy, logger *logrus.Logger) *Service {
	if policy == nil {
		policy = AllSegments{}
	}
	return &Service{
		engine: engine,
		audio:  audio,
		policy: policy,
		logger: logger,
	}
}

// Transcribe normalizes audioPath, runs the engine and returns a result
// with trimmed text and times rounded to two decimals. The full transcript
// always covers every segment; the policy only narrows Segments.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (*models.TranscriptionResult, error) {
	const op = "TranscriptionService.Transcribe"

	logger := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"engine":    s.engine.Name(),
		"audio":     audioPath,
	})

	normalized, err := s.audio.NormalizeAudio(ctx, audioPath)
	if err != nil {
		return nil, newTranscriptionError(op, err, "audio normalization failed")
	}
	defer func() {
		if err := os.Remove(normalized); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("Failed to remove normalized audio")
		}
	}()

	raw, err := s.engine.Transcribe(ctx, normalized)
	if err != nil {
		return nil, err
	}

	segments := make([]models.Segment, 0, len(raw.Segments))
	texts := make([]string, 0, len(raw.Segments))
	for _, seg := range raw.Segments {
		start := utils.Round2(seg.StartTime)
		end := utils.Round2(seg.EndTime)
		if end < start {
			end = start
		}
		text := strings.TrimSpace(seg.Text)
		segments = append(segments, models.Segment{StartTime: start, EndTime: end, Text: text})
		texts = append(texts, text)
	}

	duration := raw.Duration
	if duration <= 0 {
		duration = s.probeDuration(ctx, normalized, segments, logger)
	}

	result := &models.TranscriptionResult{
		Language:       raw.Language,
		Duration:       utils.Round2(duration),
		FullTranscript: utils.JoinTranscript(texts),
		Segments:       s.policy.Apply(segments),
	}

	logger.WithFields(logrus.Fields{
		"language": result.Language,
		"segments": len(segments),
		"kept":     len(result.Segments),
		"policy":   s.policy.Name(),
	}).Info("Transcription completed")

	return result, nil
}

func (s *Service) probeDuration(ctx context.Context, path string, segments []models.Segment, logger *logrus.Entry) float64 {
	duration, err := s.audio.ProbeDuration(ctx, path)
	if err == nil {
		return duration
	}

	logger.WithError(err).Warn("Failed to probe audio duration")
	if n := len(segments); n > 0 {
		return segments[n-1].EndTime
	}
	return 0
}

// Check reports an unavailable error when the engine cannot take work.
func (s *Service) Check(ctx context.Context) error {
	const op = "TranscriptionService.Check"

	if err := s.engine.Check(ctx); err != nil {
		return errors.Unavailable(op, err, "Transcription engine is unavailable")
	}
	return nil
}

func (s *Service) Close() error {
	return s.engine.Close()
}
