// Package match applies review rules to a changeset and groups the
// matches into review tasks.
package match

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/revqhq/revq/internal/rules"
)

// Task is one unit of review work. Tasks are produced fresh each run
// and never mutated after creation.
type Task struct {
	RuleName string
	// ScopedRuleName is the rule name prefixed with its config scope
	// when the rule comes from a nested rules file, e.g. "services/api/handlers".
	ScopedRuleName string
	Description    string
	FilesToReview  []string
	Instructions   string
	// AgentPersona is resolved for the target platform; empty means a
	// generic reviewer.
	AgentPersona   string
	SourceLocation string
	// AdditionalFiles holds unchanged files that also match the rule's
	// patterns, when the rule asks for them.
	AdditionalFiles []string
	// AllChangedFilenames carries the full changeset when the rule asks
	// for it; nil otherwise.
	AllChangedFilenames []string
}

// Match evaluates every rule independently against the changed files
// and produces review tasks per each rule's grouping strategy. A file
// may satisfy multiple rules and appear in multiple tasks. skipDirs
// names repo-relative directories (such as the tool's own state
// directories) that the unchanged-matching scan must never look into.
func Match(changed []string, rs []rules.Rule, repoRoot, platform string, skipDirs ...string) []Task {
	var tasks []Task
	for i := range rs {
		r := &rs[i]

		var matched []string
		for _, f := range changed {
			if FileMatches(r, f) {
				matched = append(matched, f)
			}
		}
		if len(matched) == 0 {
			continue
		}

		base := Task{
			RuleName:       r.Name,
			ScopedRuleName: scopedName(r),
			Description:    r.Description,
			Instructions:   r.Instructions,
			AgentPersona:   r.Persona(platform),
			SourceLocation: r.SourceLocation(),
		}
		if r.IncludeAllChangedFilenames {
			base.AllChangedFilenames = changed
		}

		switch r.Strategy {
		case rules.StrategyIndividual:
			for _, f := range matched {
				t := base
				t.FilesToReview = []string{f}
				tasks = append(tasks, t)
			}
		case rules.StrategyMatchesTogether:
			t := base
			t.FilesToReview = matched
			if r.IncludeUnchangedMatchingFiles {
				t.AdditionalFiles = unchangedMatching(repoRoot, r, changed, skipDirs)
			}
			tasks = append(tasks, t)
		case rules.StrategyAllChangedFiles:
			// Tripwire: any match pulls the entire changeset into review.
			t := base
			t.FilesToReview = changed
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// FileMatches reports whether a changed file satisfies the rule: it
// must lie under the rule's source directory, match at least one
// include pattern relative to it, and match no exclude pattern.
func FileMatches(r *rules.Rule, file string) bool {
	rel, ok := relToRule(r, file)
	if !ok {
		return false
	}
	return patternsMatch(rel, r.IncludePatterns, r.ExcludePatterns)
}

func patternsMatch(rel string, include, exclude []string) bool {
	matched := false
	for _, p := range include {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, p := range exclude {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return false
		}
	}
	return true
}

// relToRule rewrites a repo-relative path to be relative to the rule's
// source directory, or reports false when the file lies outside it.
func relToRule(r *rules.Rule, file string) (string, bool) {
	file = filepath.ToSlash(file)
	if r.SourceDir == "" || r.SourceDir == "." {
		return file, true
	}
	prefix := r.SourceDir + "/"
	if !strings.HasPrefix(file, prefix) {
		return "", false
	}
	return file[len(prefix):], true
}

// unchangedMatching scans the filesystem under the rule's source
// directory for files matching its patterns, independent of the
// changeset, and returns the repo-relative ones not already changed.
func unchangedMatching(repoRoot string, r *rules.Rule, changed []string, skipDirs []string) []string {
	changedSet := make(map[string]bool, len(changed))
	for _, f := range changed {
		changedSet[f] = true
	}

	scanRoot := repoRoot
	if r.SourceDir != "" && r.SourceDir != "." {
		scanRoot = filepath.Join(repoRoot, filepath.FromSlash(r.SourceDir))
	}

	var extra []string
	_ = filepath.WalkDir(scanRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(scanRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		repoRel := rel
		if r.SourceDir != "" && r.SourceDir != "." {
			repoRel = path.Join(r.SourceDir, rel)
		}
		if d.IsDir() {
			if d.Name() == ".git" || underAnyDir(repoRel, skipDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if underAnyDir(repoRel, skipDirs) {
			return nil
		}
		if !patternsMatch(rel, r.IncludePatterns, r.ExcludePatterns) {
			return nil
		}
		if !changedSet[repoRel] {
			extra = append(extra, repoRel)
		}
		return nil
	})
	sort.Strings(extra)
	return extra
}

// underAnyDir reports whether rel equals or lives under one of dirs.
func underAnyDir(rel string, dirs []string) bool {
	for _, d := range dirs {
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

func scopedName(r *rules.Rule) string {
	if r.SourceDir == "" || r.SourceDir == "." {
		return r.Name
	}
	return r.SourceDir + "/" + r.Name
}
