package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revqhq/revq/internal/match"
	"github.com/revqhq/revq/internal/rules"
)

var (
	rulesPath       string
	rulesJSON       bool
	rulesMatchFiles []string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List configured review rules",
	Long: `List every review rule discovered under the repository root.

With --match, only rules whose patterns match at least one of the given
files are shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rulesRun()
	},
}

func init() {
	rulesCmd.Flags().StringVar(&rulesPath, "path", ".", "Repository root to search for rule files")
	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "Output as JSON")
	rulesCmd.Flags().StringArrayVar(&rulesMatchFiles, "match", nil, "Only show rules matching this file (repeatable)")
	rootCmd.AddCommand(rulesCmd)
}

func rulesRun() error {
	root, err := resolveRoot(rulesPath)
	if err != nil {
		return err
	}

	rs, diags := rules.Discover(root)
	for _, d := range diags {
		ui.Warning("config: %s", d)
	}

	if len(rulesMatchFiles) > 0 {
		rs = filterRules(rs, rulesMatchFiles)
	}

	if rulesJSON {
		data, err := json.MarshalIndent(rules.Summarize(rs), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	if len(rs) == 0 {
		ui.Info("No review rules found.")
		return nil
	}

	table := ui.Table([]string{"NAME", "STRATEGY", "DESCRIPTION", "DEFINED IN"})
	for i := range rs {
		r := &rs[i]
		table.Append([]string{r.Name, string(r.Strategy), r.Description, r.SourceLocation()})
	}
	table.Render()
	return nil
}

func filterRules(rs []rules.Rule, files []string) []rules.Rule {
	var out []rules.Rule
	for i := range rs {
		for _, f := range files {
			if match.FileMatches(&rs[i], f) {
				out = append(out, rs[i])
				break
			}
		}
	}
	return out
}
