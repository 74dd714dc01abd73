package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the interface for the git operations revq needs.
// All methods take a repo path parameter; no process-global working
// directory state is read or modified.
type Client interface {
	RepoRoot(path string) (string, error)
	DiffRange(path, from, to string) ([]string, error)
	Unstaged(path string) ([]string, error)
	Staged(path string) ([]string, error)
	UntrackedFiles(path string) ([]string, error)
	MergeBase(path, a, b string) (string, error)
	SymbolicRef(path, name string) (string, error)
	RefExists(path, ref string) bool
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

// DiffRange lists files added, copied, modified, or renamed between two
// commits. Deleted files are filtered out by git itself.
func (c *RealClient) DiffRange(path, from, to string) ([]string, error) {
	out, err := gitCmd(path, "diff", "--name-only", "--diff-filter=ACMR", from, to)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Unstaged lists working-tree modifications not yet staged.
func (c *RealClient) Unstaged(path string) ([]string, error) {
	out, err := gitCmd(path, "diff", "--name-only", "--diff-filter=ACMR")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Staged lists changes in the index not yet committed.
func (c *RealClient) Staged(path string) ([]string, error) {
	out, err := gitCmd(path, "diff", "--name-only", "--cached", "--diff-filter=ACMR")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// UntrackedFiles lists files git does not know about, minus ignored ones.
func (c *RealClient) UntrackedFiles(path string) ([]string, error) {
	out, err := gitCmd(path, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// MergeBase returns the nearest common ancestor of two refs.
func (c *RealClient) MergeBase(path, a, b string) (string, error) {
	return gitCmd(path, "merge-base", a, b)
}

// SymbolicRef resolves a symbolic ref like refs/remotes/origin/HEAD to
// its short target branch name, e.g. "origin/main".
func (c *RealClient) SymbolicRef(path, name string) (string, error) {
	return gitCmd(path, "symbolic-ref", "--short", name)
}

// RefExists reports whether ref resolves to a commit.
func (c *RealClient) RefExists(path, ref string) bool {
	_, err := gitCmd(path, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	return err == nil
}
