package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// QualityCmds wraps the devtool test runners.
func QualityCmds() []*cobra.Command {
	runners := []struct {
		use, short string
		run        func() error
	}{
		{"test", "Run unit tests", test.Test},
		{"lint", "Run linters", test.Lint},
		{"integration-test", "Run tests against attached hardware", test.Integ},
	}
	cmds := make([]*cobra.Command, 0, len(runners))
	for _, r := range runners {
		cmds = append(cmds, &cobra.Command{
			Use:   r.use,
			Short: r.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := r.run(); err != nil {
					return fmt.Errorf("%s failed: %w", r.use, err)
				}
				return nil
			},
		})
	}
	return cmds
}
