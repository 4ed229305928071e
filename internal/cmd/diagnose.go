package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/config"
	"github.com/turbolytics/docket/internal/transfer/aria2"
)

func newDiagnoseCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check aria2c and torrent connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.config()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(c.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := config.NewTransferer(c, logger.Named("docket.diagnose"))
			printDiagnosis(cmd.OutOrStdout(), client.Diagnose(cmd.Context(), catalog.Trackers, aria2.DefaultPorts))
			return nil
		},
	}
}

func printDiagnosis(w io.Writer, d aria2.Diagnosis) {
	fmt.Fprintln(w, "1. aria2c")
	if d.VersionErr != nil {
		fmt.Fprintf(w, "   not available: %v\n\n%s\n", d.VersionErr, aria2.InstallInstructions)
	} else {
		fmt.Fprintf(w, "   %s\n", d.Version)
	}

	fmt.Fprintln(w, "\n2. DHT cache")
	switch {
	case !d.DHT.Exists:
		fmt.Fprintf(w, "   %s does not exist yet (created on first torrent download)\n", d.DHT.Path)
	case d.DHT.Size < 100:
		fmt.Fprintf(w, "   %s is %d bytes and looks corrupt (removed on next torrent download)\n", d.DHT.Path, d.DHT.Size)
	default:
		fmt.Fprintf(w, "   %s (%d bytes)\n", d.DHT.Path, d.DHT.Size)
	}

	fmt.Fprintln(w, "\n3. Trackers")
	t := newTable(w)
	t.AppendHeader(table.Row{"Host", "Result", "Time"})
	for _, tc := range d.Trackers {
		result, elapsed := "not tested (UDP)", "-"
		switch {
		case tc.Tested && tc.Reachable:
			result, elapsed = "reachable", tc.Elapsed.Round(time.Millisecond).String()
		case tc.Tested:
			result, elapsed = fmt.Sprintf("unreachable: %v", tc.Err), tc.Elapsed.Round(time.Millisecond).String()
		case tc.Err != nil:
			result = fmt.Sprintf("invalid: %v", tc.Err)
		}
		t.AppendRow(table.Row{tc.Host, result, elapsed})
	}
	t.Render()

	fmt.Fprintln(w, "\n4. Local ports")
	for _, p := range d.Ports {
		state := "free"
		if p.InUse {
			state = "in use"
		}
		fmt.Fprintf(w, "   %d: %s\n", p.Port, state)
	}
}
