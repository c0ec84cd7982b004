package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Itsme23476/filescout/internal/app"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index <directory>",
		Short: "Index a directory for search",
		Long: `Index walks the directory, enriches supported files with captions,
tags, and extracted text, and stores embeddings for semantic search.

Re-running index is incremental: unchanged files are skipped and an
interrupted run resumes where it left off.

Examples:
  filescout index ~/Documents
  filescout index ~/Pictures --force`,
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

			start := time.Now()
			run, err := a.Index(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}

			printer(cmd).RunSummary(run, time.Since(start))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-enrich every file, ignoring change detection")
	return cmd
}
