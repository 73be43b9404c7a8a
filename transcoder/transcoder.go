package transcoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/autoclip/config"
	apperrors "github.com/nijaru/autoclip/errors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	sampleRate   = 16000
	maxBackoff   = 30 * time.Second
	backoffScale = 2
)

// Transcoder wraps the ffmpeg and ffprobe binaries. Every operation writes
// exactly one file and is safe for concurrent use.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	attempts    int
	backoff     time.Duration
	logger      *logrus.Logger
}

func New(cfg config.MediaConfig, logger *logrus.Logger) *Transcoder {
	attempts := cfg.TranscodeRetries
	if attempts < 1 {
		attempts = 1
	}
	return &Transcoder{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		attempts:    attempts,
		backoff:     cfg.RetryBackoff,
		logger:      logger,
	}
}

// Check reports whether both tools are still discoverable.
func (t *Transcoder) Check() error {
	const op = "Transcoder.Check"

	for _, bin := range []string{t.ffmpegPath, t.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return apperrors.Unavailable(op, err, "Media transcoder is unavailable")
		}
	}
	return nil
}

// ExtractAudio writes a mono 16 kHz wav of videoPath's audio track into
// outDir and returns its path.
func (t *Transcoder) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	const op = "Transcoder.ExtractAudio"

	if err := requireFile(op, videoPath); err != nil {
		return "", err
	}

	out := filepath.Join(outDir, baseName(videoPath)+".wav")
	args := ffmpeg.Input(videoPath).
		Output(out, ffmpeg.KwArgs{
			"vn": "",
			"ac": 1,
			"ar": sampleRate,
			"f":  "wav",
		}).
		OverWriteOutput().
		GetArgs()

	if err := t.runWithRetry(ctx, op, videoPath, out, args); err != nil {
		return "", err
	}
	return out, nil
}

// NormalizeAudio resamples audioPath to mono 16 kHz next to the input as
// <base>_16k.wav.
func (t *Transcoder) NormalizeAudio(ctx context.Context, audioPath string) (string, error) {
	const op = "Transcoder.NormalizeAudio"

	if err := requireFile(op, audioPath); err != nil {
		return "", err
	}

	out := filepath.Join(filepath.Dir(audioPath), baseName(audioPath)+"_16k.wav")
	args := ffmpeg.Input(audioPath).
		Output(out, ffmpeg.KwArgs{
			"ac": 1,
			"ar": sampleRate,
		}).
		OverWriteOutput().
		GetArgs()

	if err := t.runWithRetry(ctx, op, audioPath, out, args); err != nil {
		return "", err
	}
	return out, nil
}

// CutClip renders [start, end) of videoPath into outDir under a random
// clip_<hex>.mp4 name.
func (t *Transcoder) CutClip(ctx context.Context, videoPath string, start, end float64, outDir string) (string, error) {
	const op = "Transcoder.CutClip"

	if start < 0 || start >= end {
		return "", newTranscodeError(op, videoPath, ErrInvalidRange, "")
	}
	if err := requireFile(op, videoPath); err != nil {
		return "", err
	}

	out := filepath.Join(outDir, ClipName())
	args := ffmpeg.Input(videoPath).
		Output(out, ffmpeg.KwArgs{
			"ss":     formatSeconds(start),
			"t":      formatSeconds(end - start),
			"c:v":    "libx264",
			"preset": "veryfast",
			"c:a":    "aac",
		}).
		OverWriteOutput().
		GetArgs()

	if err := t.runWithRetry(ctx, op, videoPath, out, args); err != nil {
		return "", err
	}
	return out, nil
}

// ProbeDuration returns the container duration of path in seconds.
func (t *Transcoder) ProbeDuration(ctx context.Context, path string) (float64, error) {
	const op = "Transcoder.ProbeDuration"

	if err := requireFile(op, path); err != nil {
		return 0, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, newTranscodeError(op, path, errors.Wrap(err, "ffprobe failed"), stderr.String())
	}

	s := strings.TrimSpace(stdout.String())
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, newTranscodeError(op, path, errors.Wrapf(err, "parse duration %q", s), "")
	}
	return sec, nil
}

// ClipName returns a collision-free clip file name.
func ClipName() string {
	return "clip_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".mp4"
}

func (t *Transcoder) runWithRetry(ctx context.Context, op, input, output string, args []string) error {
	backoff := t.backoff
	var lastErr *TranscodeError

	for attempt := 1; attempt <= t.attempts; attempt++ {
		lastErr = t.run(ctx, op, input, output, args)
		if lastErr == nil {
			return nil
		}
		if !lastErr.retryable() || ctx.Err() != nil || attempt == t.attempts {
			break
		}

		t.logger.WithFields(logrus.Fields{
			"operation": op,
			"path":      input,
			"attempt":   attempt,
			"backoff":   backoff.String(),
			"error":     lastErr.Err.Error(),
		}).Warn("Transcode failed, retrying")

		select {
		case <-ctx.Done():
			return newTranscodeError(op, input, ctx.Err(), "")
		case <-time.After(backoff):
		}

		backoff *= backoffScale
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	os.Remove(output)
	return lastErr
}

func (t *Transcoder) run(ctx context.Context, op, input, output string, args []string) *TranscodeError {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	cmd.Stderr = &stderr

	t.logger.WithFields(logrus.Fields{
		"operation": op,
		"args":      strings.Join(args, " "),
	}).Debug("Running ffmpeg")

	if err := cmd.Run(); err != nil {
		return newTranscodeError(op, input, errors.Wrap(err, "ffmpeg failed"), stderr.String())
	}

	if info, err := os.Stat(output); err != nil || info.IsDir() {
		return newTranscodeError(op, input, ErrMissingOutput, stderr.String())
	}
	return nil
}

func requireFile(op, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return newTranscodeError(op, path, ErrInputNotFound, "")
	}
	return nil
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
