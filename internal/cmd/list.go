package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal/catalog"
)

func newListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the known datasets and how each can be obtained",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.config()
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), catalog.Default(c.URLs()))
			return nil
		},
	}
}

func printCatalog(w io.Writer, c *catalog.Catalog) {
	t := newTable(w)
	t.SetTitle("Available Datasets")
	t.AppendHeader(table.Row{"Dataset", "ZIP", "Size", "Torrent", "Torrent Size", "Notes"})

	var scrape []string
	for _, e := range c.Entries() {
		zip, zipSize := "NO", "-"
		if e.ZipAvailable {
			zip = "YES"
		}
		if e.ZipSizeMB > 0 {
			zipSize = fmt.Sprintf("%d MB", e.ZipSizeMB)
		}

		torrent, torrentSize := "-", "-"
		if e.HasMagnet() {
			torrent = "YES"
		}
		if e.MagnetSizeGB > 0 {
			torrentSize = fmt.Sprintf("%g GB", e.MagnetSizeGB)
		}

		var notes []string
		if !e.ZipAvailable {
			notes = append(notes, "ZIP removed")
		}
		if e.Verified() {
			notes = append(notes, "[verified]")
		}
		if e.NeedsScrape() {
			scrape = append(scrape, fmt.Sprint(e.Number))
		}

		t.AppendRow(table.Row{e.Number, zip, zipSize, torrent, torrentSize, strings.Join(notes, " ")})
	}
	t.Render()

	if len(scrape) > 0 {
		fmt.Fprintf(w, "\nDatasets %s are only complete through scraping: docket download --scrape N\n",
			strings.Join(scrape, ", "))
	}
}
