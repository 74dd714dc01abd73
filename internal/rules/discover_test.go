package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, root, dir, content string) string {
	t.Helper()
	d := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(d, 0o755))
	p := filepath.Join(d, FileName)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDiscover_Basic(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, ".", `
py_review:
  description: Review Python changes
  match:
    include:
      - "**/*.py"
    exclude:
      - "**/conftest.py"
  review:
    strategy: individual
    instructions: Check for type hints and error handling.
    agent:
      claude: security reviewer
    additional_context:
      all_changed_filenames: true
      unchanged_matching_files: true
`)

	rs, diags := Discover(root)
	require.Empty(t, diags)
	require.Len(t, rs, 1)

	r := rs[0]
	assert.Equal(t, "py_review", r.Name)
	assert.Equal(t, "Review Python changes", r.Description)
	assert.Equal(t, []string{"**/*.py"}, r.IncludePatterns)
	assert.Equal(t, []string{"**/conftest.py"}, r.ExcludePatterns)
	assert.Equal(t, StrategyIndividual, r.Strategy)
	assert.Equal(t, "Check for type hints and error handling.", r.Instructions)
	assert.Equal(t, "security reviewer", r.Persona("claude"))
	assert.Empty(t, r.Persona("cursor"))
	assert.True(t, r.IncludeAllChangedFilenames)
	assert.True(t, r.IncludeUnchangedMatchingFiles)
	assert.Equal(t, ".", r.SourceDir)
	assert.Equal(t, FileName, r.SourceFile)
	assert.Equal(t, 2, r.SourceLine)
	assert.Equal(t, "review-rules.yaml:2", r.SourceLocation())
}

func TestDiscover_NestedConfigScopesToItsDirectory(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, "services/api", `
api_review:
  description: API contract review
  match:
    include: ["**/*.go"]
  review:
    strategy: matches_together
    instructions: Review handler changes together.
`)

	rs, diags := Discover(root)
	require.Empty(t, diags)
	require.Len(t, rs, 1)
	assert.Equal(t, "services/api", rs[0].SourceDir)
	assert.Equal(t, "services/api/review-rules.yaml", rs[0].SourceFile)
}

func TestDiscover_InstructionsFromFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "review.md"),
		[]byte("Be thorough.\n"), 0o644))
	writeRules(t, root, ".", `
doc_review:
  description: Documentation review
  match:
    include: ["**/*.md"]
  review:
    strategy: matches_together
    instructions:
      file: docs/review.md
`)

	rs, diags := Discover(root)
	require.Empty(t, diags)
	require.Len(t, rs, 1)
	assert.Equal(t, "Be thorough.\n", rs[0].Instructions)
}

func TestDiscover_MissingInstructionsFileFailsLoudly(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, ".", `
doc_review:
  description: Documentation review
  match:
    include: ["**/*.md"]
  review:
    strategy: matches_together
    instructions:
      file: no-such-file.md
`)

	rs, diags := Discover(root)
	assert.Empty(t, rs)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Msg, "no-such-file.md")
}

func TestDiscover_InvalidFileDoesNotBlockSiblings(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, "bad", "just: [broken\n")
	writeRules(t, root, "good", `
ok_rule:
  description: Fine
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: Review it.
`)

	rs, diags := Discover(root)
	require.Len(t, rs, 1)
	assert.Equal(t, "ok_rule", rs[0].Name)
	require.Len(t, diags, 1)
	assert.Equal(t, "bad/review-rules.yaml", diags[0].File)
}

func TestDiscover_InvalidRuleDoesNotBlockSiblingRule(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, ".", `
broken:
  description: Missing match
  review:
    strategy: individual
    instructions: x
fine:
  description: Valid
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: Review it.
`)

	rs, diags := Discover(root)
	require.Len(t, rs, 1)
	assert.Equal(t, "fine", rs[0].Name)
	require.Len(t, diags, 1)
	assert.Equal(t, "broken", diags[0].Rule)
	assert.Contains(t, diags[0].Msg, "match")
}

func TestDiscover_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name: "unexpected top-level key",
			yaml: `
r1:
  description: d
  surprise: true
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: x
`,
			wantMsg: `unexpected key "surprise"`,
		},
		{
			name: "unexpected match key",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
    globs: ["*.go"]
  review:
    strategy: individual
    instructions: x
`,
			wantMsg: `unexpected key "globs"`,
		},
		{
			name: "unexpected review key",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: x
    reviewer: bob
`,
			wantMsg: `unexpected key "reviewer"`,
		},
		{
			name: "empty include",
			yaml: `
r1:
  description: d
  match:
    include: []
  review:
    strategy: individual
    instructions: x
`,
			wantMsg: "match.include must not be empty",
		},
		{
			name: "unknown strategy",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
  review:
    strategy: pairwise
    instructions: x
`,
			wantMsg: `unknown strategy "pairwise"`,
		},
		{
			name: "bad provider name",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: x
    agent:
      "my provider": persona
`,
			wantMsg: "provider name",
		},
		{
			name: "malformed include glob",
			yaml: `
r1:
  description: d
  match:
    include: ["[unclosed"]
  review:
    strategy: individual
    instructions: x
`,
			wantMsg: `invalid glob pattern "[unclosed" in match.include`,
		},
		{
			name: "malformed exclude glob",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
    exclude: ["src/["]
  review:
    strategy: individual
    instructions: x
`,
			wantMsg: `invalid glob pattern "src/[" in match.exclude`,
		},
		{
			name: "unexpected additional_context key",
			yaml: `
r1:
  description: d
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: x
    additional_context:
      everything: true
`,
			wantMsg: `unexpected key "everything"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeRules(t, root, ".", tc.yaml)

			rs, diags := Discover(root)
			assert.Empty(t, rs)
			require.Len(t, diags, 1)
			assert.Contains(t, diags[0].Msg, tc.wantMsg)
		})
	}
}

func TestDiscover_BadRuleName(t *testing.T) {
	root := t.TempDir()
	writeRules(t, root, ".", `
"bad name!":
  description: d
  match:
    include: ["*.go"]
  review:
    strategy: individual
    instructions: x
`)

	rs, diags := Discover(root)
	assert.Empty(t, rs)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Msg, "rule name")
}

func TestDiscover_NoRuleFiles(t *testing.T) {
	rs, diags := Discover(t.TempDir())
	assert.Empty(t, rs)
	assert.Empty(t, diags)
}

func TestSummarize(t *testing.T) {
	rs := []Rule{
		{Name: "a", Description: "first", SourceFile: "review-rules.yaml"},
		{Name: "b", Description: "second", SourceFile: "sub/review-rules.yaml"},
	}
	sums := Summarize(rs)
	require.Len(t, sums, 2)
	assert.Equal(t, Summary{Name: "a", Description: "first", DefiningFile: "review-rules.yaml"}, sums[0])
	assert.Equal(t, Summary{Name: "b", Description: "second", DefiningFile: "sub/review-rules.yaml"}, sums[1])
}
