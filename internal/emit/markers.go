package emit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Markers is the pass-memoization store: one zero-byte flag file per
// completed review_id. Files are created on demand and never mutated,
// so concurrent readers are safe.
type Markers struct {
	dir string
}

// NewMarkers creates a marker store rooted at dir. The directory is
// created lazily on the first mark.
func NewMarkers(dir string) *Markers {
	return &Markers{dir: dir}
}

// Dir returns the marker directory path.
func (m *Markers) Dir() string {
	return m.dir
}

// IsPassed reports whether reviewID was previously marked passed.
func (m *Markers) IsPassed(reviewID string) bool {
	if validateID(reviewID) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(m.dir, reviewID))
	return err == nil
}

// MarkPassed records a completed review and returns a confirmation
// echoing the id. Invalid ids are rejected before any side effect.
func (m *Markers) MarkPassed(reviewID string) (string, error) {
	if err := validateID(reviewID); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating marker directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.dir, reviewID), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("creating marker: %w", err)
	}
	return fmt.Sprintf("Marked review %s as passed", reviewID), nil
}

// validateID rejects ids that could escape the marker directory.
// Generated review ids never contain path separators, so any separator
// or traversal sequence indicates a hostile or corrupted id.
func validateID(reviewID string) error {
	switch {
	case reviewID == "":
		return fmt.Errorf("review_id must not be empty")
	case filepath.IsAbs(reviewID):
		return fmt.Errorf("review_id %q must not be an absolute path", reviewID)
	case strings.ContainsAny(reviewID, `/\`):
		return fmt.Errorf("review_id %q must not contain path separators", reviewID)
	case reviewID == "..":
		return fmt.Errorf("review_id %q must not be a path traversal", reviewID)
	}
	return nil
}
