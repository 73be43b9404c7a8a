package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CLIEngine runs the whisper.cpp binary once per transcription.
type CLIEngine struct {
	bin      string
	model    string
	language string
	logger   *logrus.Logger
}

func NewCLIEngine(cfg config.TranscriptionConfig, logger *logrus.Logger) *CLIEngine {
	return &CLIEngine{
		bin:      cfg.CLIPath,
		model:    cfg.ModelPath,
		language: cfg.Language,
		logger:   logger,
	}
}

func (e *CLIEngine) Name() string { return config.EngineCLI }

// whisperJSON is the subset of whisper.cpp -oj output we read
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (e *CLIEngine) Transcribe(ctx context.Context, wavPath string) (*Transcript, error) {
	const op = "CLIEngine.Transcribe"

	outDir, err := os.MkdirTemp("", "whisper-")
	if err != nil {
		return nil, newTranscriptionError(op, err, "failed to create output dir")
	}
	defer os.RemoveAll(outDir)

	outPrefix := filepath.Join(outDir, "whisper")
	args := []string{
		"-m", e.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	if e.language != "" {
		args = append(args, "-l", e.language)
	}

	e.logger.WithFields(logrus.Fields{
		"operation": op,
		"audio":     wavPath,
	}).Debug("Running whisper.cpp")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, newTranscriptionError(op, fmt.Errorf("%v (stderr: %s)", err, stderr.String()), "whisper.cpp failed")
	}

	data, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, newTranscriptionError(op, err, "whisper.cpp produced no output")
	}

	var parsed whisperJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, newTranscriptionError(op, errors.Wrap(err, "decode whisper.cpp json"), "failed to parse transcription result")
	}

	result := &Transcript{
		Language: parsed.Result.Language,
		Segments: make([]models.Segment, 0, len(parsed.Transcription)),
	}
	for _, s := range parsed.Transcription {
		result.Segments = append(result.Segments, models.Segment{
			StartTime: float64(s.Offsets.From) / 1000,
			EndTime:   float64(s.Offsets.To) / 1000,
			Text:      s.Text,
		})
	}
	return result, nil
}

func (e *CLIEngine) Check(ctx context.Context) error {
	const op = "CLIEngine.Check"

	if _, err := exec.LookPath(e.bin); err != nil {
		return newTranscriptionError(op, err, "whisper.cpp binary not found")
	}
	if _, err := os.Stat(e.model); err != nil {
		return newTranscriptionError(op, err, "whisper model not found")
	}
	return nil
}

func (e *CLIEngine) Close() error { return nil }
