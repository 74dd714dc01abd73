// Package change computes the set of changed files for a review run,
// from explicit input, a piped file list, or git state.
package change

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/revqhq/revq/internal/git"
)

// Base branch candidates tried in order when the remote's default
// branch cannot be resolved.
var baseCandidates = []string{"origin/main", "origin/master", "main", "master"}

// Options selects the changed-file source. Sources are mutually
// exclusive, in priority order: ExplicitFiles, Piped, then git.
type Options struct {
	// BaseRef overrides base-branch auto-detection for the git source.
	BaseRef string
	// ExplicitFiles, when non-empty, is used verbatim; git is not invoked.
	ExplicitFiles []string
	// Piped, when non-nil, is a non-interactive stream of
	// newline-separated paths; blank lines are ignored.
	Piped io.Reader
	// ExcludeDirs lists repo-relative directories (forward slashes)
	// whose contents never count as changed. Keeps the tool's own
	// state directories out of the git-derived changeset; explicit and
	// piped input stay verbatim.
	ExcludeDirs []string
}

// Detector resolves changed files against a repository.
type Detector struct {
	git git.Client
}

// NewDetector creates a Detector backed by the given git client.
func NewDetector(gc git.Client) *Detector {
	return &Detector{git: gc}
}

// ChangedFiles returns the sorted, deduplicated, repo-relative set of
// files added, modified, copied, or renamed relative to the base point.
// Deleted files are never included.
func (d *Detector) ChangedFiles(repoRoot string, opts Options) ([]string, error) {
	if len(opts.ExplicitFiles) > 0 {
		return normalize(opts.ExplicitFiles), nil
	}
	if opts.Piped != nil {
		files, err := readPiped(opts.Piped)
		if err != nil {
			return nil, fmt.Errorf("reading piped paths: %w", err)
		}
		return normalize(files), nil
	}
	return d.fromGit(repoRoot, opts)
}

// fromGit unions committed changes since the base point, unstaged and
// staged modifications, and untracked-but-not-ignored files.
func (d *Detector) fromGit(repoRoot string, opts Options) ([]string, error) {
	base, err := d.resolveBase(repoRoot, opts.BaseRef)
	if err != nil {
		return nil, err
	}

	var all []string
	if base != "HEAD" {
		// Diff from the merge-base, not the branch tip, so changes that
		// live only on the base branch are not pulled in.
		mb, err := d.git.MergeBase(repoRoot, base, "HEAD")
		if err != nil {
			return nil, fmt.Errorf("resolving merge-base with %s: %w", base, err)
		}
		committed, err := d.git.DiffRange(repoRoot, mb, "HEAD")
		if err != nil {
			return nil, err
		}
		all = append(all, committed...)
	}

	unstaged, err := d.git.Unstaged(repoRoot)
	if err != nil {
		return nil, err
	}
	all = append(all, unstaged...)

	staged, err := d.git.Staged(repoRoot)
	if err != nil {
		return nil, err
	}
	all = append(all, staged...)

	untracked, err := d.git.UntrackedFiles(repoRoot)
	if err != nil {
		return nil, err
	}
	all = append(all, untracked...)

	if len(opts.ExcludeDirs) > 0 {
		kept := all[:0]
		for _, f := range all {
			if !underAny(f, opts.ExcludeDirs) {
				kept = append(kept, f)
			}
		}
		all = kept
	}

	return normalize(all), nil
}

func underAny(file string, dirs []string) bool {
	for _, d := range dirs {
		if file == d || strings.HasPrefix(file, d+"/") {
			return true
		}
	}
	return false
}

// resolveBase picks the base ref to diff against. An explicit ref must
// exist; auto-detection falls back through the remote default branch,
// the fixed candidate list, and finally HEAD (uncommitted changes only).
func (d *Detector) resolveBase(repoRoot, baseRef string) (string, error) {
	if baseRef != "" {
		// Validity is checked by the merge-base call, whose error
		// carries git's own diagnostic for the bad ref.
		return baseRef, nil
	}

	if ref, err := d.git.SymbolicRef(repoRoot, "refs/remotes/origin/HEAD"); err == nil && ref != "" {
		return ref, nil
	}

	for _, candidate := range baseCandidates {
		if d.git.RefExists(repoRoot, candidate) {
			return candidate, nil
		}
	}
	return "HEAD", nil
}

func readPiped(r io.Reader) ([]string, error) {
	var files []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			files = append(files, line)
		}
	}
	return files, scanner.Err()
}

func normalize(files []string) []string {
	seen := make(map[string]bool, len(files))
	var out []string
	for _, f := range files {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
