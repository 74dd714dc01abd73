package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revqhq/revq/internal/rules"
)

func pyRule(strategy rules.Strategy) rules.Rule {
	return rules.Rule{
		Name:            "py_review",
		Description:     "Review Python changes",
		IncludePatterns: []string{"**/*.py"},
		Strategy:        strategy,
		Instructions:    "Check it.",
		SourceDir:       ".",
		SourceFile:      "review-rules.yaml",
		SourceLine:      1,
	}
}

func TestMatch_IndividualStrategy(t *testing.T) {
	changed := []string{"docs/readme.md", "src/a.py", "src/b.py", "src/c.py"}
	tasks := Match(changed, []rules.Rule{pyRule(rules.StrategyIndividual)}, t.TempDir(), "claude")

	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"src/a.py"}, tasks[0].FilesToReview)
	assert.Equal(t, []string{"src/b.py"}, tasks[1].FilesToReview)
	assert.Equal(t, []string{"src/c.py"}, tasks[2].FilesToReview)
	for _, task := range tasks {
		assert.Equal(t, "py_review", task.RuleName)
		assert.Equal(t, "Check it.", task.Instructions)
		assert.Equal(t, "review-rules.yaml:1", task.SourceLocation)
	}
}

func TestMatch_MatchesTogetherStrategy(t *testing.T) {
	changed := []string{"docs/readme.md", "src/a.py", "src/b.py", "src/c.py"}
	tasks := Match(changed, []rules.Rule{pyRule(rules.StrategyMatchesTogether)}, t.TempDir(), "claude")

	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"src/a.py", "src/b.py", "src/c.py"}, tasks[0].FilesToReview)
}

func TestMatch_AllChangedFilesStrategy(t *testing.T) {
	changed := []string{
		"a.txt", "b.txt", "c.txt", "d.txt", "e.txt",
		"f.txt", "g.txt", "h.txt", "i.txt", "only.py",
	}
	tasks := Match(changed, []rules.Rule{pyRule(rules.StrategyAllChangedFiles)}, t.TempDir(), "claude")

	require.Len(t, tasks, 1)
	assert.Equal(t, changed, tasks[0].FilesToReview, "tripwire pulls the entire changeset in")
}

func TestMatch_NoMatchesProducesNoTask(t *testing.T) {
	tasks := Match([]string{"docs/readme.md"}, []rules.Rule{pyRule(rules.StrategyAllChangedFiles)}, t.TempDir(), "claude")
	assert.Empty(t, tasks)
}

func TestMatch_ExcludePrecedence(t *testing.T) {
	r := pyRule(rules.StrategyIndividual)
	r.ExcludePatterns = []string{"**/conftest.py"}

	tasks := Match([]string{"src/a.py", "src/conftest.py"}, []rules.Rule{r}, t.TempDir(), "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"src/a.py"}, tasks[0].FilesToReview)
}

func TestMatch_ScopedToSourceDir(t *testing.T) {
	r := pyRule(rules.StrategyIndividual)
	r.SourceDir = "services/api"
	r.SourceFile = "services/api/review-rules.yaml"

	// lib/a.py matches "**/*.py" syntactically but lives outside the
	// rule's directory.
	tasks := Match([]string{"lib/a.py", "services/api/handlers.py"}, []rules.Rule{r}, t.TempDir(), "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"services/api/handlers.py"}, tasks[0].FilesToReview)
	assert.Equal(t, "services/api/py_review", tasks[0].ScopedRuleName)
}

func TestMatch_FileCanSatisfyMultipleRules(t *testing.T) {
	r1 := pyRule(rules.StrategyIndividual)
	r2 := pyRule(rules.StrategyMatchesTogether)
	r2.Name = "py_review_all"

	tasks := Match([]string{"src/a.py"}, []rules.Rule{r1, r2}, t.TempDir(), "claude")
	require.Len(t, tasks, 2)
	assert.Equal(t, "py_review", tasks[0].RuleName)
	assert.Equal(t, "py_review_all", tasks[1].RuleName)
}

func TestMatch_PersonaResolution(t *testing.T) {
	r := pyRule(rules.StrategyIndividual)
	r.AgentPersonas = map[string]string{"claude": "security reviewer"}

	tasks := Match([]string{"a.py"}, []rules.Rule{r}, t.TempDir(), "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, "security reviewer", tasks[0].AgentPersona)

	tasks = Match([]string{"a.py"}, []rules.Rule{r}, t.TempDir(), "cursor")
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].AgentPersona, "absent platform key means generic reviewer")
}

func TestMatch_AllChangedFilenamesFlag(t *testing.T) {
	r := pyRule(rules.StrategyIndividual)
	r.IncludeAllChangedFilenames = true

	changed := []string{"a.py", "readme.md"}
	tasks := Match(changed, []rules.Rule{r}, t.TempDir(), "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, changed, tasks[0].AllChangedFilenames)
}

func TestMatch_UnchangedMatchingFiles(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"src/a.py", "src/b.py", "src/notes.txt"} {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, f)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x\n"), 0o644))
	}

	r := pyRule(rules.StrategyMatchesTogether)
	r.IncludeUnchangedMatchingFiles = true

	tasks := Match([]string{"src/a.py"}, []rules.Rule{r}, root, "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"src/a.py"}, tasks[0].FilesToReview)
	assert.Equal(t, []string{"src/b.py"}, tasks[0].AdditionalFiles,
		"unchanged matching files only; changed and non-matching files excluded")
}

func TestMatch_UnchangedMatchingSkipsStateDirs(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"src/a.py", "src/b.py", ".revq/instructions/stale.py", ".revq/passed/id.py"} {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, f)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x\n"), 0o644))
	}

	r := pyRule(rules.StrategyMatchesTogether)
	r.IncludeUnchangedMatchingFiles = true

	tasks := Match([]string{"src/a.py"}, []rules.Rule{r}, root, "claude",
		".revq/instructions", ".revq/passed")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"src/b.py"}, tasks[0].AdditionalFiles,
		"the tool's own state directories are never review input")
}

func TestMatch_UnchangedMatchingScopedToRuleDir(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"api/a.py", "api/b.py", "other/c.py"} {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, f)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("x\n"), 0o644))
	}

	r := pyRule(rules.StrategyMatchesTogether)
	r.SourceDir = "api"
	r.IncludeUnchangedMatchingFiles = true

	tasks := Match([]string{"api/a.py"}, []rules.Rule{r}, root, "claude")
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"api/b.py"}, tasks[0].AdditionalFiles)
}

func TestFileMatches_GlobSemantics(t *testing.T) {
	cases := []struct {
		pattern string
		file    string
		want    bool
	}{
		{"*.py", "a.py", true},
		{"*.py", "src/a.py", false}, // single star stays within a segment
		{"**/*.py", "src/deep/a.py", true},
		{"src/*.py", "src/a.py", true},
		{"src/*.py", "src/deep/a.py", false},
		{"src/**/*.py", "src/deep/nested/a.py", true},
	}
	for _, tc := range cases {
		r := rules.Rule{IncludePatterns: []string{tc.pattern}, SourceDir: "."}
		assert.Equal(t, tc.want, FileMatches(&r, tc.file), "pattern %q vs %q", tc.pattern, tc.file)
	}
}

func TestMatch_ExampleScenario(t *testing.T) {
	tasks := Match([]string{"docs/readme.md", "src/a.py"},
		[]rules.Rule{pyRule(rules.StrategyIndividual)}, t.TempDir(), "claude")

	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"src/a.py"}, tasks[0].FilesToReview)
}
