package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/revqhq/revq/internal/emit"
)

var passPath string

var passCmd = &cobra.Command{
	Use:   "pass <review-id>",
	Short: "Mark a review as passed",
	Long: `Record that a review has passed by creating its marker file.

A passed review is skipped on subsequent runs until the content of its
reviewed files changes, which produces a new review id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return passRun(args[0])
	},
}

func init() {
	passCmd.Flags().StringVar(&passPath, "path", ".", "Repository root the review belongs to")
	rootCmd.AddCommand(passCmd)
}

func passRun(reviewID string) error {
	root, err := resolveRoot(passPath)
	if err != nil {
		return err
	}

	markers := emit.NewMarkers(stateDir(root, viper.GetString("markers_dir")))
	msg, err := markers.MarkPassed(reviewID)
	if err != nil {
		return err
	}
	ui.Success("%s", msg)
	return nil
}
