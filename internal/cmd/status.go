package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/scraper"
)

func newStatusCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what has been downloaded and how far each scrape got",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context(), "docket.status")
			if err != nil {
				return err
			}
			defer s.Close()

			return printStatus(cmd.Context(), cmd.OutOrStdout(), s.Catalog, s.Scraper)
		},
	}
}

type location struct {
	name      string
	dir       string
	pattern   string
	recursive bool
}

func printStatus(ctx context.Context, w io.Writer, c *catalog.Catalog, s *scraper.Scraper) error {
	layout := s.Layout()

	statuses, err := s.Statuses(ctx)
	if err != nil {
		return err
	}

	// scraped datasets are those that need it plus any with progress
	var shown []scraper.Status
	for _, st := range statuses {
		e, err := c.Lookup(st.Dataset)
		if err != nil {
			return err
		}
		if e.NeedsScrape() || st.Started {
			shown = append(shown, st)
		}
	}

	locations := []location{
		{name: "torrents/", dir: layout.TorrentsDir(), recursive: true},
		{name: "zips/", dir: layout.ZipsDir(), pattern: "*.zip"},
	}
	for _, st := range shown {
		dir := layout.DocumentDir(st.Dataset)
		locations = append(locations, location{name: filepath.Base(dir) + "/", dir: dir, pattern: "*.pdf"})
	}

	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Download Status: %s", layout.Root))
	t.AppendHeader(table.Row{"Location", "Files", "Size"})
	for _, l := range locations {
		u, err := local.Measure(l.dir, l.pattern, l.recursive)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{l.name, u.Files, fmt.Sprintf("%.2f GB", u.GB())})
	}
	t.Render()

	fmt.Fprintln(w, "\nScrape Progress:")
	for _, st := range shown {
		line := fmt.Sprintf("  Dataset %d: %s", st.Dataset, st.Progress())
		if st.Started {
			line += fmt.Sprintf(", %d downloaded, %d missing", st.Downloaded, st.Missing)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
