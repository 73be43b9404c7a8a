package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries     = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
)

// ServerEngine talks to a long-running whisper server. The server process
// owns the loaded model, so a single client is built at startup and shared.
type ServerEngine struct {
	baseURL  string
	language string
	client   *http.Client
	backoff  time.Duration
	logger   *logrus.Logger
}

func NewServerEngine(cfg config.TranscriptionConfig, logger *logrus.Logger) *ServerEngine {
	return &ServerEngine{
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		language: cfg.Language,
		client:   &http.Client{Timeout: cfg.Timeout},
		backoff:  initialBackoff,
		logger:   logger,
	}
}

func (e *ServerEngine) Name() string { return config.EngineServer }

// verboseJSON is the whisper server verbose_json response
type verboseJSON struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

func (e *ServerEngine) Transcribe(ctx context.Context, wavPath string) (*Transcript, error) {
	const op = "ServerEngine.Transcribe"

	backoff := e.backoff
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, retry, err := e.transcribeOnce(ctx, wavPath)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry || attempt == maxRetries || ctx.Err() != nil {
			break
		}

		e.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"backoff":   backoff.String(),
			"error":     err.Error(),
		}).Warn("Transcription request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, newTranscriptionError(op, ctx.Err(), "transcription cancelled")
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return nil, newTranscriptionError(op, lastErr, "transcription failed")
}

// transcribeOnce reports whether a failure is worth retrying: transport
// errors and 5xx responses are, anything else is not.
func (e *ServerEngine) transcribeOnce(ctx context.Context, wavPath string) (*Transcript, bool, error) {
	body, contentType, err := e.buildForm(wavPath)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/inference", body)
	if err != nil {
		return nil, false, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, "whisper server unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("whisper server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return nil, resp.StatusCode >= 500, err
	}

	var parsed verboseJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, errors.Wrap(err, "decode response")
	}
	if parsed.Error != "" {
		return nil, false, errors.New(parsed.Error)
	}

	result := &Transcript{
		Language: parsed.Language,
		Duration: parsed.Duration,
		Segments: make([]models.Segment, 0, len(parsed.Segments)),
	}
	for _, s := range parsed.Segments {
		result.Segments = append(result.Segments, models.Segment{
			StartTime: s.Start,
			EndTime:   s.End,
			Text:      s.Text,
		})
	}
	return result, false, nil
}

func (e *ServerEngine) buildForm(wavPath string) (io.Reader, string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, "", errors.Wrap(err, "open audio")
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", errors.Wrap(err, "copy audio")
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
	}
	if e.language != "" {
		fields["language"] = e.language
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (e *ServerEngine) Check(ctx context.Context) error {
	const op = "ServerEngine.Check"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/", nil)
	if err != nil {
		return newTranscriptionError(op, err, "invalid server url")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return newTranscriptionError(op, err, "whisper server unreachable")
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return newTranscriptionError(op, nil, fmt.Sprintf("whisper server unhealthy: %d", resp.StatusCode))
	}
	return nil
}

func (e *ServerEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
