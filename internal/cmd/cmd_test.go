package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/index"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/scraper"
	"github.com/turbolytics/docket/internal/transfer"
	"github.com/turbolytics/docket/internal/transfer/aria2"
	"go.uber.org/zap"
)

type fakeTransferer struct {
	fetched     []transfer.Resource
	batches     [][]transfer.Request
	concurrency int
	fail        bool
}

func (f *fakeTransferer) Fetch(ctx context.Context, r transfer.Resource) transfer.Outcome {
	f.fetched = append(f.fetched, r)
	o := transfer.Outcome{Target: r.Location, Path: r.Path()}
	if f.fail {
		o.Err = errors.New("boom")
	}
	return o
}

func (f *fakeTransferer) Batch(ctx context.Context, reqs []transfer.Request, concurrency int) (transfer.Report, error) {
	f.batches = append(f.batches, reqs)
	f.concurrency = concurrency
	var report transfer.Report
	for _, r := range reqs {
		o := transfer.Outcome{Target: r.URL, Path: r.Path()}
		if f.fail {
			o.Err = transfer.ErrIncomplete
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	return report, nil
}

func newTestDownloader(dir string, tr transfer.Transferer, out *bytes.Buffer) *downloader {
	return &downloader{
		catalog:  catalog.Default(catalog.DefaultURLs()),
		layout:   local.NewLayout(dir),
		transfer: tr,
		out:      out,
		logger:   zap.NewNop(),
	}
}

func TestPrintCatalog(t *testing.T) {
	var buf bytes.Buffer
	printCatalog(&buf, catalog.Default(catalog.DefaultURLs()))

	out := buf.String()
	assert.Contains(t, out, "Available Datasets")
	assert.Contains(t, out, "ZIP removed")
	assert.Contains(t, out, "[verified]")
	assert.Contains(t, out, "10200 MB")
	assert.Contains(t, out, "Datasets 9, 11 are only complete through scraping")
}

func TestScrapeTargets(t *testing.T) {
	c := catalog.Default(catalog.DefaultURLs())

	targets, err := scrapeTargets(c, false, nil)
	require.NoError(t, err)
	assert.Empty(t, targets)

	targets, err = scrapeTargets(c, false, []int{3})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, targets)

	targets, err = scrapeTargets(c, true, []int{11})
	require.NoError(t, err)
	assert.Equal(t, []int{11, 9}, targets)

	_, err = scrapeTargets(c, true, []int{9, 42})
	assert.ErrorIs(t, err, catalog.ErrUnknownDataset)
}

func TestDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown dataset fails before any transfer", func(t *testing.T) {
		dir := t.TempDir()
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		checked := false

		err := download(ctx, &buf, seededScraper(t, dir), newTestDownloader(dir, tr, &buf), downloadPlan{
			all:         true,
			scrape:      []int{42},
			concurrency: 5,
		}, func() error {
			checked = true
			return nil
		})
		assert.ErrorIs(t, err, catalog.ErrUnknownDataset)
		assert.False(t, checked)
		assert.Empty(t, tr.fetched)
		assert.Empty(t, tr.batches)
	})

	t.Run("missing tool fails before any transfer", func(t *testing.T) {
		dir := t.TempDir()
		tr := &fakeTransferer{}
		var buf bytes.Buffer

		err := download(ctx, &buf, seededScraper(t, dir), newTestDownloader(dir, tr, &buf), downloadPlan{
			torrents: true,
		}, func() error { return transfer.ErrToolMissing })
		assert.ErrorIs(t, err, transfer.ErrToolMissing)
		assert.Empty(t, tr.fetched)
	})

	t.Run("torrents and zips", func(t *testing.T) {
		dir := t.TempDir()
		tr := &fakeTransferer{}
		var buf bytes.Buffer

		err := download(ctx, &buf, seededScraper(t, dir), newTestDownloader(dir, tr, &buf), downloadPlan{
			torrents: true,
			zips:     true,
		}, func() error { return nil })
		require.NoError(t, err)
		assert.Len(t, tr.fetched, 12)
		assert.Contains(t, buf.String(), "=== TORRENTS ===")
		assert.Contains(t, buf.String(), "=== ZIP FILES ===")
		assert.NotContains(t, buf.String(), "DOCUMENT SCRAPING")
	})
}

func TestDownloader(t *testing.T) {
	ctx := context.Background()

	t.Run("zips", func(t *testing.T) {
		dir := t.TempDir()
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		d := newTestDownloader(dir, tr, &buf)

		d.zips(ctx)
		require.Len(t, tr.fetched, 9)
		first := tr.fetched[0]
		assert.Equal(t, transfer.KindDirect, first.Kind)
		assert.Equal(t, "DataSet1.zip", first.Filename)
		assert.Equal(t, filepath.Join(dir, "zips"), first.Dir)
		assert.NoError(t, d.err())
	})

	t.Run("torrents", func(t *testing.T) {
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		d := newTestDownloader(t.TempDir(), tr, &buf)

		d.torrents(ctx)
		require.Len(t, tr.fetched, 3)
		for _, r := range tr.fetched {
			assert.Equal(t, transfer.KindSwarm, r.Kind)
			assert.Empty(t, r.Filename)
		}
	})

	t.Run("failures are counted", func(t *testing.T) {
		tr := &fakeTransferer{fail: true}
		var buf bytes.Buffer
		d := newTestDownloader(t.TempDir(), tr, &buf)

		d.torrents(ctx)
		assert.ErrorIs(t, d.err(), ErrTransfersFailed)
		assert.Contains(t, buf.String(), "FAILED: boom")
	})

	t.Run("documents", func(t *testing.T) {
		dir := t.TempDir()
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		d := newTestDownloader(dir, tr, &buf)

		urls := catalog.DefaultURLs()
		refs := []internal.Reference{urls.Reference(9, 39025), urls.Reference(9, 39026)}
		require.NoError(t, d.documents(ctx, 9, refs, 4))

		require.Len(t, tr.batches, 1)
		assert.Equal(t, 4, tr.concurrency)
		assert.Equal(t, transfer.Request{
			URL:      refs[0].URL,
			Dir:      filepath.Join(dir, "dataset9-pdfs"),
			Filename: "EFTA00039025.pdf",
		}, tr.batches[0][0])
		assert.Contains(t, buf.String(), "Downloaded 2 of 2 documents")
	})

	t.Run("no documents", func(t *testing.T) {
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		d := newTestDownloader(t.TempDir(), tr, &buf)

		require.NoError(t, d.documents(ctx, 9, nil, 4))
		assert.Empty(t, tr.batches)
	})
}

func seededScraper(t *testing.T, dir string) *scraper.Scraper {
	store := index.NewFileStore(dir, nil)
	urls := catalog.DefaultURLs()
	idx := index.New(9)
	idx.Merge([]internal.Reference{urls.Reference(9, 39026), urls.Reference(9, 39025)}, 4)
	require.NoError(t, store.Save(context.Background(), idx))

	return scraper.New(catalog.Default(urls), store, scraper.WithLayout(local.NewLayout(dir)))
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := seededScraper(t, dir)

	docs := s.Layout().DocumentDir(9)
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "EFTA00039025.pdf"), []byte("%PDF"), 0644))

	tr := &fakeTransferer{}
	var buf bytes.Buffer
	require.NoError(t, resume(ctx, &buf, s, newTestDownloader(dir, tr, &buf), 9, 5))

	require.Len(t, tr.batches, 1)
	require.Len(t, tr.batches[0], 1)
	assert.Equal(t, "EFTA00039026.pdf", tr.batches[0][0].Filename)
	assert.Contains(t, buf.String(), "Found 1 missing files for Dataset 9")

	t.Run("nothing missing", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(docs, "EFTA00039026.pdf"), []byte("%PDF"), 0644))
		tr := &fakeTransferer{}
		var buf bytes.Buffer
		require.NoError(t, resume(ctx, &buf, s, newTestDownloader(dir, tr, &buf), 9, 5))
		assert.Empty(t, tr.batches)
		assert.Contains(t, buf.String(), "No missing files for Dataset 9!")
	})
}

func TestPrintStatus(t *testing.T) {
	dir := t.TempDir()
	s := seededScraper(t, dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "zips"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zips", "DataSet1.zip"), []byte("PK"), 0644))

	var buf bytes.Buffer
	require.NoError(t, printStatus(context.Background(), &buf, catalog.Default(catalog.DefaultURLs()), s))

	out := buf.String()
	assert.Contains(t, out, "zips/")
	assert.Contains(t, out, "dataset9-pdfs/")
	assert.Contains(t, out, "dataset11-pdfs/")
	assert.Contains(t, out, "Dataset 9: 2 files indexed (page 4), 0 downloaded, 2 missing")
	assert.Contains(t, out, "Dataset 11: not started")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &scraper.Result{Dataset: 9, Stop: scraper.StopAlreadyComplete})
	assert.Equal(t, "Dataset 9: index already complete\n", buf.String())

	buf.Reset()
	printResult(&buf, &scraper.Result{
		Dataset:      9,
		Stop:         scraper.StopFetchFailed,
		FirstPage:    3,
		LastPage:     5,
		PagesFetched: 3,
		FetchErr:     errors.New("status 503"),
	})
	assert.Contains(t, buf.String(), "pages 3-5, stop: fetch_failed")
	assert.Contains(t, buf.String(), "stopped early: status 503")
}

func TestPrintDiagnosis(t *testing.T) {
	var buf bytes.Buffer
	printDiagnosis(&buf, aria2.Diagnosis{
		Version: "aria2 version 1.37.0",
		DHT:     aria2.DHTStatus{Path: "/tmp/dht.dat", Exists: true, Size: 10},
		Trackers: []aria2.TrackerCheck{
			{Tracker: "http://bt1.archive.org:6969/announce", Host: "bt1.archive.org", Tested: true, Reachable: true, Elapsed: 120 * time.Millisecond},
			{Tracker: "udp://tracker.opentrackr.org:1337/announce", Host: "tracker.opentrackr.org"},
		},
		Ports: []aria2.PortCheck{{Port: 6918, InUse: true}, {Port: 6971}},
	})

	out := buf.String()
	assert.Contains(t, out, "aria2 version 1.37.0")
	assert.Contains(t, out, "looks corrupt")
	assert.Contains(t, out, "reachable")
	assert.Contains(t, out, "not tested (UDP)")
	assert.Contains(t, out, "6918: in use")
	assert.Contains(t, out, "6971: free")
}

func TestRootCommand(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		cmd := NewRootCommand()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"list"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "Available Datasets")
	})

	t.Run("download without options", func(t *testing.T) {
		cmd := NewRootCommand()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"download"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "Quick start")
	})

	t.Run("status", func(t *testing.T) {
		dir := t.TempDir()
		cmd := NewRootCommand()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"status", "-o", dir})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, buf.String(), "Dataset 9: not started")
	})

	t.Run("download rejects unknown dataset", func(t *testing.T) {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"download", "--all", "--scrape", "42", "-o", t.TempDir()})
		assert.ErrorIs(t, cmd.Execute(), catalog.ErrUnknownDataset)
	})

	t.Run("bad dataset", func(t *testing.T) {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"scrape", "nine", "-o", t.TempDir()})
		assert.Error(t, cmd.Execute())
	})
}
