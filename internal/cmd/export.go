package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/parquet"
)

func newExportCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export DATASET",
		Short: "Write the index of a dataset as a parquet inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := datasetArg(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := g.open(ctx, "docket.export")
			if err != nil {
				return err
			}
			defer s.Close()

			idx, err := s.Scraper.Index(ctx, n)
			if err != nil {
				return err
			}
			sizes, err := local.Sizes(s.Config.Layout().DocumentDir(n))
			if err != nil {
				return err
			}

			key, err := parquet.NewExporter(s.Runs, s.logger).Export(ctx, idx, sizes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d references of dataset %d to %s\n", idx.Len(), n, key)
			return nil
		},
	}
}
