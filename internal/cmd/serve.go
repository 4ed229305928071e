package cmd

import (
	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal/server"
)

func newServeCommand(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scrape and download progress over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := g.open(ctx, "docket.serve")
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = s.Config.Server.Addr
			}
			return server.NewServer(s.Scraper, s.logger).Start(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}
