package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revqhq/revq/internal/git"
	"github.com/revqhq/revq/internal/output"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "revq",
	Short: "Change-driven code review orchestration",
	Long: `revq turns declarative review rules into concrete review tasks.
It discovers review-rules.yaml files in a repository, detects which
files changed, matches rules against the changeset, and emits one
instruction file per review task for an agent platform to execute.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/revq/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVQ")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	viper.SetDefault("instructions_dir", filepath.Join(".revq", "instructions"))
	viper.SetDefault("markers_dir", filepath.Join(".revq", "passed"))
	viper.SetDefault("platform", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// repoDir resolves a --path flag value to an absolute directory.
func repoDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("path %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path %s is not a directory", path)
	}
	return abs, nil
}

// resolveRoot resolves a --path value to the repository toplevel when
// the path sits inside a git repository. git reports diff paths
// relative to the toplevel, so every downstream component must agree
// on that base no matter which subdirectory the command ran from.
// Outside a repository the absolute path is used as-is; explicit and
// piped file lists work there, and the git source fails later with
// git's own diagnostic.
func resolveRoot(path string) (string, error) {
	abs, err := repoDir(path)
	if err != nil {
		return "", err
	}
	if top, err := git.NewClient().RepoRoot(abs); err == nil && top != "" {
		return top, nil
	}
	return abs, nil
}

// stateDir resolves a configured directory against the repo root unless
// it is already absolute.
func stateDir(root, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
