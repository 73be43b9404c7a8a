package janitor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Janitor removes transient files. It never returns removal errors; they
// are logged and the next path is tried.
type Janitor struct {
	logger *logrus.Logger
	now    func() time.Time
	inUse  func(path string) bool
}

func New(logger *logrus.Logger) *Janitor {
	return &Janitor{logger: logger, now: time.Now}
}

// Protect makes Sweep keep every path for which inUse returns true, however
// old. Call it before any sweep runs.
func (j *Janitor) Protect(inUse func(path string) bool) {
	j.inUse = inUse
}

// CleanupJob removes each path. Empty and already missing paths are
// skipped, so calling it twice is harmless.
func (j *Janitor) CleanupJob(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.WithError(err).WithField("path", path).Warn("Failed to remove transient file")
		}
	}
}

// Sweep removes regular files directly inside folders whose modification
// time is older than maxAge, and returns how many were removed. Protected
// paths are skipped.
func (j *Janitor) Sweep(folders []string, maxAge time.Duration) int {
	cutoff := j.now().Add(-maxAge)
	removed := 0

	for _, folder := range folders {
		entries, err := os.ReadDir(folder)
		if err != nil {
			if !os.IsNotExist(err) {
				j.logger.WithError(err).WithField("folder", folder).Warn("Failed to read folder")
			}
			continue
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}

			path := filepath.Join(folder, entry.Name())
			if j.inUse != nil && j.inUse(path) {
				j.logger.WithField("path", path).Debug("Skipping file of an active job")
				continue
			}
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					j.logger.WithError(err).WithField("path", path).Warn("Failed to remove expired file")
				}
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		j.logger.WithFields(logrus.Fields{
			"folders": folders,
			"max_age": maxAge.String(),
			"removed": removed,
		}).Info("Sweep removed expired files")
	}
	return removed
}
