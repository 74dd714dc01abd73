package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revqhq/revq/internal/change"
	"github.com/revqhq/revq/internal/emit"
	"github.com/revqhq/revq/internal/git"
	"github.com/revqhq/revq/internal/match"
	"github.com/revqhq/revq/internal/output"
	"github.com/revqhq/revq/internal/rules"
)

var platforms = []string{"claude", "cursor", "copilot"}

var (
	reviewPlatform string
	reviewBaseRef  string
	reviewPath     string
	reviewFiles    []string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Generate review tasks for the current changeset",
	Long: `Discover review rules, detect changed files, and emit one
instruction file per matched review task.

Changed files come from git by default: commits since the merge-base
with the default branch, plus staged, unstaged, and untracked files.
Pass --files or pipe a newline-separated list on stdin to review an
explicit set instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun()
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewPlatform, "instructions-for", "", fmt.Sprintf("Target platform for instructions (%s)", strings.Join(platforms, ", ")))
	reviewCmd.Flags().StringVar(&reviewBaseRef, "base-ref", "", "Base ref for change detection (default: auto-detected default branch)")
	reviewCmd.Flags().StringVar(&reviewPath, "path", ".", "Repository root to operate in")
	reviewCmd.Flags().StringArrayVar(&reviewFiles, "files", nil, "Review these files instead of detecting changes (repeatable)")
	rootCmd.AddCommand(reviewCmd)
}

func resolvePlatform() (string, error) {
	p := reviewPlatform
	if p == "" {
		p = viper.GetString("platform")
	}
	if p == "" {
		return "", fmt.Errorf("--instructions-for is required (one of: %s)", strings.Join(platforms, ", "))
	}
	for _, known := range platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (one of: %s)", p, strings.Join(platforms, ", "))
}

func reviewRun() error {
	platform, err := resolvePlatform()
	if err != nil {
		return err
	}

	root, err := resolveRoot(reviewPath)
	if err != nil {
		return err
	}

	instructionsDir := stateDir(root, viper.GetString("instructions_dir"))
	markersDir := stateDir(root, viper.GetString("markers_dir"))
	markers := emit.NewMarkers(markersDir)
	emitter := emit.NewEmitter(root, instructionsDir, markers)
	// Artifacts always describe the current changeset, so stale ones go
	// even when this run ends with nothing to emit.
	if err := emitter.ClearStale(); err != nil {
		return err
	}
	stateDirs := repoRelDirs(root, instructionsDir, markersDir)

	rs, diags := rules.Discover(root)
	for _, d := range diags {
		ui.Warning("config: %s", d)
	}
	if len(rs) == 0 {
		ui.Info("No review rules found under %s. Add a %s file to configure reviews.", root, rules.FileName)
		return nil
	}
	ui.VerboseLog("Loaded %d rule(s)", len(rs))

	opts := change.Options{
		BaseRef:       reviewBaseRef,
		ExplicitFiles: reviewFiles,
		ExcludeDirs:   stateDirs,
	}
	if len(reviewFiles) == 0 && stdinIsPiped() {
		opts.Piped = os.Stdin
	}

	detector := change.NewDetector(git.NewClient())
	changed, err := detector.ChangedFiles(root, opts)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		ui.Info("No changed files detected. Nothing to review.")
		return nil
	}
	ui.VerboseLog("%d changed file(s)", len(changed))

	tasks := match.Match(changed, rs, root, platform, stateDirs...)
	if len(tasks) == 0 {
		ui.Info("%d changed file(s), but none matched a review rule.", len(changed))
		return nil
	}

	results, err := emitter.Emit(tasks)
	if err != nil {
		return err
	}

	if skipped := len(tasks) - len(results); skipped > 0 {
		ui.Info("Skipped %d review(s) already marked as passed.", skipped)
	}
	if len(results) == 0 {
		ui.Success("All matched reviews have already passed.")
		return nil
	}

	printReviewTasks(root, platform, results)
	return nil
}

// repoRelDirs converts state directories to repo-relative form so the
// detector and matcher can keep the tool's own output out of review.
// Directories outside the repo root need no exclusion.
func repoRelDirs(root string, dirs ...string) []string {
	var rels []string
	for _, d := range dirs {
		rel, err := filepath.Rel(root, d)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	return rels
}

// stdinIsPiped reports whether stdin carries piped input rather than a
// terminal. Replaceable in tests.
var stdinIsPiped = func() bool {
	fd := os.Stdin.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// printReviewTasks renders each pending review as a unit the target
// platform can hand to a separate review agent.
func printReviewTasks(root, platform string, results []emit.Result) {
	fmt.Fprintf(ui.Out, "%d review task(s) for %s. Dispatch each to a separate review agent:\n\n", len(results), platform)

	for i, res := range results {
		t := res.Task
		persona := t.AgentPersona
		if persona == "" {
			persona = "general code reviewer"
		}
		desc := t.Description
		if desc == "" {
			desc = fmt.Sprintf("Apply the %s review rule to the matched files", t.RuleName)
		}

		rel, err := filepath.Rel(root, res.Path)
		if err != nil {
			rel = res.Path
		}

		fmt.Fprintf(ui.Out, "%d. %s\n", i+1, output.Cyan(taskTitle(t)))
		fmt.Fprintf(ui.Out, "   Description:  %s\n", desc)
		fmt.Fprintf(ui.Out, "   Persona:      %s\n", persona)
		fmt.Fprintf(ui.Out, "   Instructions: %s\n", rel)
		fmt.Fprintln(ui.Out)
	}

	fmt.Fprintf(ui.Out, "Each instruction file ends with the command that marks its review as passed.\n")
}

func taskTitle(t match.Task) string {
	n := len(t.FilesToReview)
	if n == 1 {
		return fmt.Sprintf("%s review of 1 file", t.ScopedRuleName)
	}
	return fmt.Sprintf("%s review of %d files", t.ScopedRuleName, n)
}
