package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Regenerate CHANGELOG.md with git-chglog",
		Long: `Regenerate the changelog from conventional commit messages
(feat, fix, docs, refactor, test, perf, build, ci, chore).

Requires git-chglog in PATH:
  go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := exec.LookPath("git-chglog"); err != nil {
				return fmt.Errorf("git-chglog not installed: %w", err)
			}
			output, _ := cmd.Flags().GetString("output")
			next, _ := cmd.Flags().GetString("next")
			query, _ := cmd.Flags().GetString("tag")

			chglogArgs := []string{"--output", output}
			if next != "" {
				chglogArgs = append(chglogArgs, "--next-tag", next)
			}
			if query != "" {
				chglogArgs = append(chglogArgs, query)
			}
			slog.Debug("running git-chglog", "args", chglogArgs)
			run := exec.CommandContext(cmd.Context(), "git-chglog", chglogArgs...)
			run.Stdout, run.Stderr = os.Stdout, os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			slog.Info("changelog generated", "output", output)
			return nil
		},
	}
	cmd.Flags().String("next", "", "tag of the upcoming release, e.g. v0.3.0")
	cmd.Flags().String("output", "CHANGELOG.md", "output file")
	cmd.Flags().String("tag", "", "tag query, e.g. v0.2.0 or v0.1.0..v0.2.0")
	return cmd
}
