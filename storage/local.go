package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nijaru/autoclip/errors"
)

const ClipRoute = "/clips/"

// Local keeps raw uploads and generated clips on disk. Uploads are stored
// under the job id, never under the client's file name.
type Local struct {
	UploadDir string
	ClipsDir  string
}

func NewLocal(uploadDir, clipsDir string) (*Local, error) {
	const op = "Local.New"

	for _, dir := range []string{uploadDir, clipsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Internal(op, err, "Failed to create storage directory")
		}
	}
	return &Local{UploadDir: uploadDir, ClipsDir: clipsDir}, nil
}

// SaveUpload streams r to <uploads>/<jobID><ext>. A body that is empty or
// larger than maxSize is rejected and nothing is left on disk.
func (s *Local) SaveUpload(jobID, filename string, r io.Reader, maxSize int64) (string, error) {
	const op = "Local.SaveUpload"

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.UploadDir, jobID+ext)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", errors.Internal(op, err, "Failed to create upload file")
	}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		os.Remove(path)
		return "", errors.Internal(op, err, "Failed to write upload")
	case n == 0:
		os.Remove(path)
		return "", errors.InvalidInput(op, nil, "Uploaded file is empty")
	case maxSize > 0 && n > maxSize:
		os.Remove(path)
		return "", errors.InvalidInput(op, nil, "Uploaded file is too large")
	}

	return path, nil
}

// ResolveClip maps a bare clip name to its path inside the clips dir.
func (s *Local) ResolveClip(name string) (string, error) {
	const op = "Local.ResolveClip"

	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return "", errors.InvalidInput(op, nil, "Invalid clip name")
	}

	root, err := filepath.Abs(s.ClipsDir)
	if err != nil {
		return "", errors.Internal(op, err, "Failed to resolve clips directory")
	}
	path := filepath.Join(root, name)
	if filepath.Dir(path) != root {
		return "", errors.InvalidInput(op, nil, "Invalid clip name")
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.NotFound(op, err, "Clip not found")
	}
	return path, nil
}

// ClipURL is the public path a clip file is served under.
func ClipURL(name string) string {
	return ClipRoute + name
}
