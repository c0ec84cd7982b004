package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Itsme23476/filescout/internal/app"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <directory>",
		Short: "Remove an indexed directory from the index",
		Long: `Remove deletes every record and embedding for files under the given
directory. The files themselves are untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			removed, err := a.RemoveRoot(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files from the index\n", removed)
			return nil
		},
	}
}
