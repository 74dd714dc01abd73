// Package emit renders review tasks into self-contained instruction
// artifacts and skips tasks whose identity was already marked passed.
package emit

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/revqhq/revq/internal/match"
)

// maxJoinedPathLen caps the joined file-path segment of a review id
// before it collapses to a "{N}_files" form.
const maxJoinedPathLen = 100

// missingPlaceholder stands in for the contents of an unreadable file
// when hashing, so one bad path never aborts identity computation.
const missingPlaceholder = "MISSING"

// Emitter writes instruction artifacts into a dedicated directory and
// consults the marker store to skip already-passed tasks.
type Emitter struct {
	repoRoot string
	dir      string
	markers  *Markers
}

// NewEmitter creates an Emitter. repoRoot anchors file-content reads;
// dir receives the rendered artifacts.
func NewEmitter(repoRoot, dir string, markers *Markers) *Emitter {
	return &Emitter{repoRoot: repoRoot, dir: dir, markers: markers}
}

// Result pairs an emitted task with its artifact path.
type Result struct {
	Task match.Task
	Path string
}

// Emit clears stale instruction artifacts, then renders one markdown
// artifact per task that has not already been marked passed. Marker
// files are never touched.
func (e *Emitter) Emit(tasks []match.Task) ([]Result, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating instructions directory: %w", err)
	}
	if err := e.ClearStale(); err != nil {
		return nil, err
	}

	var results []Result
	for _, t := range tasks {
		id := ReviewID(e.repoRoot, t)
		if e.markers.IsPassed(id) {
			continue
		}
		path := filepath.Join(e.dir, id+".md")
		if err := os.WriteFile(path, []byte(render(t, id)), 0o644); err != nil {
			return nil, fmt.Errorf("writing instruction artifact %s: %w", path, err)
		}
		results = append(results, Result{Task: t, Path: path})
	}
	return results, nil
}

// ClearStale removes previously emitted .md artifacts so a run never
// reports tasks from an older changeset, including runs that end with
// nothing to emit. Marker files are never touched; a directory that
// does not exist yet needs no clearing.
func (e *Emitter) ClearStale() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading instructions directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, entry.Name())); err != nil {
			return fmt.Errorf("clearing stale artifact %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// ReviewID computes the deterministic identity of a task from its rule
// name, file paths, and file contents. Identical inputs always yield
// the identical id; that invariant is what makes pass-caching correct.
func ReviewID(repoRoot string, t match.Task) string {
	return sanitizeName(t.RuleName) + "--" + sanitizePaths(t.FilesToReview) + "--" + hashContents(repoRoot, t.FilesToReview)
}

// sanitizeName replaces any character outside [A-Za-z0-9._-] with '-'.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		}
		return '-'
	}, name)
}

// sanitizePaths flattens the file paths into a filename-safe segment,
// collapsing to "{N}_files" when the joined form grows unwieldy.
func sanitizePaths(files []string) string {
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = strings.NewReplacer("/", "-", "\\", "-").Replace(f)
	}
	joined := strings.Join(parts, "_AND_")
	if len(joined) > maxJoinedPathLen {
		return fmt.Sprintf("%d_files", len(files))
	}
	return joined
}

// hashContents digests the concatenated contents of the files in
// sorted path order and returns the first 12 hex characters.
func hashContents(repoRoot string, files []string) string {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	h := sha256.New()
	for _, f := range sorted {
		data, err := os.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(f)))
		if err != nil {
			h.Write([]byte(missingPlaceholder))
			continue
		}
		h.Write(data)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// render produces the self-describing markdown artifact for a task.
func render(t match.Task, reviewID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Review: %s\n\n", t.ScopedRuleName)
	fmt.Fprintf(&b, "Rule `%s` matched %d file(s) in this changeset.\n\n", t.RuleName, len(t.FilesToReview))

	b.WriteString("## Instructions\n\n")
	b.WriteString(strings.TrimRight(t.Instructions, "\n"))
	b.WriteString("\n\n")

	b.WriteString("## Files to Review\n\n")
	for _, f := range t.FilesToReview {
		fmt.Fprintf(&b, "- @%s\n", f)
	}
	b.WriteString("\n")

	if len(t.AdditionalFiles) > 0 {
		b.WriteString("## Unchanged Matching Files\n\n")
		b.WriteString("These files match the rule's patterns but were not changed:\n\n")
		for _, f := range t.AdditionalFiles {
			fmt.Fprintf(&b, "- @%s\n", f)
		}
		b.WriteString("\n")
	}

	if len(t.AllChangedFilenames) > 0 {
		b.WriteString("## All Changed Files\n\n")
		b.WriteString("The full changeset, for context only:\n\n")
		for _, f := range t.AllChangedFilenames {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("## After Review\n\n")
	b.WriteString("If the review passes, mark it complete so the same work is not reviewed again:\n\n")
	fmt.Fprintf(&b, "    revq pass %s\n\n", reviewID)
	fmt.Fprintf(&b, "Or call the `mark_review_as_passed` tool with review_id `%s`.\n", reviewID)

	if t.SourceLocation != "" {
		fmt.Fprintf(&b, "\n---\nRule defined at %s\n", t.SourceLocation)
	}

	return b.String()
}
