package rules

import (
	"fmt"
	"regexp"
)

// Strategy determines how a rule's matched files are grouped into tasks.
type Strategy string

const (
	// StrategyIndividual produces one task per matched file.
	StrategyIndividual Strategy = "individual"
	// StrategyMatchesTogether produces a single task containing all matched files.
	StrategyMatchesTogether Strategy = "matches_together"
	// StrategyAllChangedFiles produces a single task over the entire changeset
	// whenever any file matches.
	StrategyAllChangedFiles Strategy = "all_changed_files"
)

// ValidStrategy reports whether s is one of the known strategies.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyIndividual, StrategyMatchesTogether, StrategyAllChangedFiles:
		return true
	}
	return false
}

// nameRe constrains rule names and agent provider names.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Rule is a named review policy parsed from a rules file. Rules are
// constructed fresh on every invocation and never mutated.
type Rule struct {
	Name            string
	Description     string
	IncludePatterns []string
	ExcludePatterns []string
	Strategy        Strategy
	Instructions    string

	// AgentPersonas maps platform name to persona string. May be nil.
	AgentPersonas map[string]string

	IncludeAllChangedFilenames    bool
	IncludeUnchangedMatchingFiles bool

	// SourceDir is the repo-relative directory containing the defining
	// file. Patterns are matched against paths relative to it; a changed
	// file outside it can never match.
	SourceDir string
	// SourceFile is the repo-relative path of the defining file.
	SourceFile string
	// SourceLine is the 1-based line where the rule's name appears.
	SourceLine int
}

// SourceLocation returns "file:line" for traceability output, or "" when
// the defining location is unknown.
func (r *Rule) SourceLocation() string {
	if r.SourceFile == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.SourceFile, r.SourceLine)
}

// Persona resolves the persona for a platform, or "" when the rule does
// not define one for it.
func (r *Rule) Persona(platform string) string {
	return r.AgentPersonas[platform]
}

// Diagnostic describes a non-fatal config problem found during discovery.
type Diagnostic struct {
	File string
	Rule string
	Msg  string
}

func (d Diagnostic) String() string {
	if d.Rule != "" {
		return fmt.Sprintf("%s: rule %q: %s", d.File, d.Rule, d.Msg)
	}
	return fmt.Sprintf("%s: %s", d.File, d.Msg)
}

// Summary is the rule metadata exposed to external callers.
type Summary struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DefiningFile string `json:"defining_file"`
}

// Summarize reduces rules to their queryable metadata.
func Summarize(rs []Rule) []Summary {
	out := make([]Summary, len(rs))
	for i, r := range rs {
		out[i] = Summary{Name: r.Name, Description: r.Description, DefiningFile: r.SourceFile}
	}
	return out
}
