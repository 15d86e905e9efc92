package extract

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes files under a destination directory with atomic writes.
//
// Content is written to a temporary file in the target directory and
// renamed to the final path, so partially written files are never visible.
type FileSink struct {
	destDir   string
	overwrite bool
}

// NewFileSink creates a FileSink that writes to destDir.
// Parent directories are created as needed.
func NewFileSink(destDir string, overwrite bool) *FileSink {
	return &FileSink{destDir: destDir, overwrite: overwrite}
}

// destPath maps a slash-separated archive path into destDir. It rejects
// paths that would escape destDir.
func (s *FileSink) destPath(name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("extract: %q: %w", name, ErrUnsafePath)
	}
	return filepath.Join(s.destDir, local), nil
}

// ShouldWrite returns false if the file already exists and overwrite is
// disabled.
func (s *FileSink) ShouldWrite(name string) bool {
	if s.overwrite {
		return true
	}
	dest, err := s.destPath(name)
	if err != nil {
		return true
	}
	_, err = os.Stat(dest)
	return os.IsNotExist(err)
}

// Write stores data at name.
func (s *FileSink) Write(name string, data []byte) error {
	dest, err := s.destPath(name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Same directory as dest so the rename is atomic.
	tempFile, err := os.CreateTemp(dir, ".pak-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()    //nolint:errcheck // we're cleaning up
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", dest, err)
	}
	return nil
}
