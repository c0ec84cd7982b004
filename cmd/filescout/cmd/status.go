package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Itsme23476/filescout/internal/app"
)

func newStatusCmd() *cobra.Command {
	var showHistory bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
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

			stats, err := a.Stats(cmd.Context())
			if err != nil {
				return err
			}

			p := printer(cmd)
			p.Stats(stats)

			if showHistory {
				history, err := a.RecentSearches(cmd.Context(), 10)
				if err != nil {
					return err
				}
				p.History(history)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "Include recent searches")
	return cmd
}
