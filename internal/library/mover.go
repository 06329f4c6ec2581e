package library

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// maxConflicts bounds the numbered-suffix search.
const maxConflicts = 9999

// ErrTooManyConflicts is returned when every suffix up to maxConflicts is taken.
var ErrTooManyConflicts = errors.New("too many conflicting file names")

// MoveResolvingConflicts moves src to dst without ever replacing an
// existing file. When dst is taken it tries "name (1).ext", "name (2).ext"
// and so on, and returns the path the file ended up at. Missing parent
// directories of dst are created.
func MoveResolvingConflicts(src, dst string) (string, error) {
	if err := CreateParentDirectory(dst); err != nil {
		return "", err
	}

	candidate := dst
	for attempt := 1; ; attempt++ {
		err := moveNoClobber(src, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		if attempt > maxConflicts {
			return "", fmt.Errorf("%w: %s", ErrTooManyConflicts, dst)
		}

		slog.Debug("Destination exists, trying next name", "path", candidate)
		candidate = withConflictNumber(dst, attempt)
	}
}

// CreateParentDirectory creates the directory chain above path. An existing
// directory is not an error.
func CreateParentDirectory(path string) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	return nil
}

// withConflictNumber inserts " (n)" before the final extension.
func withConflictNumber(path string, n int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
}

// moveNoClobber places src at dst and removes src. Creating dst is the
// atomic collision check: a hard link where possible, an O_EXCL copy
// otherwise (different filesystems, or filesystems without links). Either
// way an existing dst yields an error matching fs.ErrExist.
func moveNoClobber(src, dst string) error {
	err := os.Link(src, dst)
	if errors.Is(err, fs.ErrExist) {
		return err
	}
	if err != nil {
		if err := copyNoClobber(src, dst); err != nil {
			return err
		}
	}

	if err := os.Remove(src); err != nil {
		slog.Warn("Failed to remove moved recording", "path", src, "error", err)
	}
	return nil
}

func copyNoClobber(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy recording to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to finish writing %s: %w", dst, err)
	}
	return nil
}
