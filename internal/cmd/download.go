package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/scraper"
	"github.com/turbolytics/docket/internal/transfer"
	"go.uber.org/zap"
)

var ErrTransfersFailed = errors.New("some transfers failed")

// downloader hands catalog resources and discovered documents to the
// transfer tool.
type downloader struct {
	catalog  *catalog.Catalog
	layout   local.Layout
	transfer transfer.Transferer
	out      io.Writer
	logger   *zap.Logger

	failed int
}

func (s *session) downloader(w io.Writer) *downloader {
	return &downloader{
		catalog:  s.Catalog,
		layout:   s.Config.Layout(),
		transfer: s.Transfer,
		out:      w,
		logger:   s.logger,
	}
}

func (d *downloader) fetch(ctx context.Context, r transfer.Resource) {
	o := d.transfer.Fetch(ctx, r)
	switch {
	case o.Skipped:
		fmt.Fprintf(d.out, "SKIP: %s already exists\n", o.Path)
	case !o.OK():
		d.failed++
		d.logger.Error("transfer failed", zap.String("target", o.Target), zap.Error(o.Err))
		fmt.Fprintf(d.out, "FAILED: %v\n", o.Err)
	}
}

// zips fetches the archive of every dataset that still publishes one.
func (d *downloader) zips(ctx context.Context) {
	urls := d.catalog.URLs()
	for _, e := range d.catalog.Entries() {
		if !e.ZipAvailable {
			continue
		}
		fmt.Fprintf(d.out, "\nDataset %d (ZIP, ~%d MB)\n", e.Number, e.ZipSizeMB)
		d.fetch(ctx, transfer.Resource{
			Kind:     transfer.KindDirect,
			Location: urls.ZipURL(e.Number),
			Dir:      d.layout.ZipsDir(),
			Filename: catalog.ZipFilename(e.Number),
		})
	}
}

func (d *downloader) torrents(ctx context.Context) {
	for _, e := range d.catalog.Entries() {
		if !e.HasMagnet() {
			continue
		}
		fmt.Fprintf(d.out, "\nDataset %d (Torrent, %g GB)\n", e.Number, e.MagnetSizeGB)
		d.fetch(ctx, transfer.Resource{
			Kind:     transfer.KindSwarm,
			Location: e.Magnet,
			Dir:      d.layout.TorrentsDir(),
		})
	}
}

// documents downloads refs into the dataset's document directory.
func (d *downloader) documents(ctx context.Context, dataset int, refs []internal.Reference, concurrency int) error {
	if len(refs) == 0 {
		fmt.Fprintln(d.out, "No documents to download")
		return nil
	}

	dir := d.layout.DocumentDir(dataset)
	reqs := make([]transfer.Request, len(refs))
	for i, ref := range refs {
		reqs[i] = transfer.Request{URL: ref.URL, Dir: dir, Filename: ref.Filename}
	}

	fmt.Fprintf(d.out, "Downloading %d documents into %s\n", len(reqs), dir)
	report, err := d.transfer.Batch(ctx, reqs, concurrency)
	if err != nil {
		return err
	}
	if report.Err != nil {
		d.logger.Warn("transfer tool exited with an error", zap.Error(report.Err))
	}

	d.failed += report.Failed()
	fmt.Fprintf(d.out, "Downloaded %d of %d documents\n", report.Succeeded(), len(reqs))
	return nil
}

func (d *downloader) err() error {
	if d.failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrTransfersFailed, d.failed)
}

func printResult(w io.Writer, res *scraper.Result) {
	if res.Stop == scraper.StopAlreadyComplete {
		fmt.Fprintf(w, "Dataset %d: index already complete\n", res.Dataset)
		return
	}
	fmt.Fprintf(w, "Dataset %d: %d new documents from %d pages (pages %d-%d, stop: %s)\n",
		res.Dataset, len(res.New), res.PagesFetched, res.FirstPage, res.LastPage, res.Stop)
	if res.Warnings > 0 {
		fmt.Fprintf(w, "  %d pages could not be parsed\n", res.Warnings)
	}
	if res.Complete {
		fmt.Fprintln(w, "  index complete")
	}
	if res.FetchErr != nil {
		fmt.Fprintf(w, "  stopped early: %v\n  run the same command again to resume\n", res.FetchErr)
	}
}

type scrapeFlags struct {
	startPage int
	maxPages  int
}

func (f *scrapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.startPage, "start-page", 0, "Listing page to start from")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "Maximum listing pages to fetch (0 for no limit)")
}

func (f *scrapeFlags) options(cmd *cobra.Command) scraper.Options {
	return scraper.Options{
		StartPage: f.startPage,
		Explicit:  cmd.Flags().Changed("start-page"),
		MaxPages:  f.maxPages,
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newDownloadCommand(g *globals) *cobra.Command {
	var (
		all        bool
		zips       bool
		torrents   bool
		scrape     []int
		concurrent int
		sf         scrapeFlags
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download archives, torrents and scraped documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if !all && !zips && !torrents && len(scrape) == 0 {
				fmt.Fprintln(w, "No download option specified.")
				fmt.Fprintln(w, "\nQuick start:")
				fmt.Fprintln(w, "  docket download --all        # Download everything")
				fmt.Fprintln(w, "  docket download --torrents   # Just torrents (fastest)")
				fmt.Fprintln(w, "  docket download --zips       # Just ZIP files")
				fmt.Fprintln(w, "  docket download --scrape 9   # Scrape and download one dataset")
				return nil
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := g.open(ctx, "docket.download")
			if err != nil {
				return err
			}
			defer s.Close()

			if concurrent <= 0 {
				concurrent = s.Config.Transfer.Concurrency
			}
			fmt.Fprintf(w, "Output directory: %s\n", s.Config.Output)

			return download(ctx, w, s.Scraper, s.downloader(w), downloadPlan{
				all:         all,
				zips:        zips,
				torrents:    torrents,
				scrape:      scrape,
				concurrency: concurrent,
				options:     sf.options(cmd),
			}, s.Transfer.Check)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Download everything")
	cmd.Flags().BoolVar(&zips, "zips", false, "Download available ZIP archives")
	cmd.Flags().BoolVar(&torrents, "torrents", false, "Download available torrents")
	cmd.Flags().IntSliceVar(&scrape, "scrape", nil, "Scrape and download the documents of a dataset (repeatable)")
	cmd.Flags().IntVarP(&concurrent, "concurrent", "j", 0, "Concurrent document downloads (default from config)")
	sf.register(cmd)

	return cmd
}

type downloadPlan struct {
	all         bool
	zips        bool
	torrents    bool
	scrape      []int
	concurrency int
	options     scraper.Options
}

// download runs the transfers of a plan. Every requested dataset is looked up
// before check runs and before the first transfer starts.
func download(ctx context.Context, w io.Writer, s *scraper.Scraper, d *downloader, p downloadPlan, check func() error) error {
	targets, err := scrapeTargets(d.catalog, p.all, p.scrape)
	if err != nil {
		return err
	}
	if err := check(); err != nil {
		return err
	}

	if p.all || p.torrents {
		fmt.Fprintln(w, "\n=== TORRENTS ===")
		d.torrents(ctx)
	}
	if p.all || p.zips {
		fmt.Fprintln(w, "\n=== ZIP FILES ===")
		d.zips(ctx)
	}

	for _, n := range targets {
		fmt.Fprintf(w, "\n=== DATASET %d DOCUMENT SCRAPING ===\n", n)
		res, err := s.Scrape(ctx, n, p.options)
		if err != nil {
			return err
		}
		printResult(w, res)
		if err := d.documents(ctx, n, res.New, p.concurrency); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return d.err()
}

// scrapeTargets is the requested datasets followed, with all, by every
// dataset that can only be completed by scraping. Duplicates are dropped and
// an unknown dataset fails the whole list.
func scrapeTargets(c *catalog.Catalog, all bool, requested []int) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range requested {
		if _, err := c.Lookup(n); err != nil {
			return nil, err
		}
		add(n)
	}
	if all {
		for _, e := range c.Entries() {
			if e.NeedsScrape() {
				add(e.Number)
			}
		}
	}
	return out, nil
}

func newScrapeCommand(g *globals) *cobra.Command {
	var sf scrapeFlags

	cmd := &cobra.Command{
		Use:   "scrape DATASET",
		Short: "Walk the listing of a dataset and update its index without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := datasetArg(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := g.open(ctx, "docket.scrape")
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Scraper.Scrape(ctx, n, sf.options(cmd))
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return res.FetchErr
		},
	}
	sf.register(cmd)

	return cmd
}

func newResumeCommand(g *globals) *cobra.Command {
	var concurrent int

	cmd := &cobra.Command{
		Use:   "resume DATASET",
		Short: "Download the indexed documents of a dataset that are missing locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := datasetArg(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			s, err := g.open(ctx, "docket.resume")
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Transfer.Check(); err != nil {
				return err
			}
			if concurrent <= 0 {
				concurrent = s.Config.Transfer.Concurrency
			}

			return resume(ctx, cmd.OutOrStdout(), s.Scraper, s.downloader(cmd.OutOrStdout()), n, concurrent)
		},
	}
	cmd.Flags().IntVarP(&concurrent, "concurrent", "j", 0, "Concurrent document downloads (default from config)")

	return cmd
}

func resume(ctx context.Context, w io.Writer, s *scraper.Scraper, d *downloader, dataset, concurrency int) error {
	missing, err := s.Missing(ctx, dataset)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		fmt.Fprintf(w, "No missing files for Dataset %d!\n", dataset)
		return nil
	}

	fmt.Fprintf(w, "Found %d missing files for Dataset %d\n", len(missing), dataset)
	if err := d.documents(ctx, dataset, missing, concurrency); err != nil {
		return err
	}
	return d.err()
}
