package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Itsme23476/filescout/internal/app"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed files",
		Long: `Search combines structured operators with free text. Free text is
matched against names, captions, extracted text, and tags, and also
semantically against the embedding index.

Operators:
  type:<category>   restrict by category (image, pdf, document, ...)
  tag:<tag>         require a tag
  has:ocr           require extracted text
  has:vision        require a caption

Examples:
  filescout search "beach sunset"
  filescout search "type:pdf invoice march"
  filescout search "type:image tag:dog park"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if limit > 0 {
				cfg.Search.MaxResults = limit
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results, err := a.Search(cmd.Context(), query)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			printer(cmd).Results(query, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default: config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
