package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/index"
	"github.com/turbolytics/docket/internal/local"
	"go.uber.org/zap"
)

// Index loads the committed index of a catalogued dataset.
func (s *Scraper) Index(ctx context.Context, dataset int) (*index.Index, error) {
	if _, err := s.catalog.Lookup(dataset); err != nil {
		return nil, err
	}
	idx, err := s.store.Load(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("load index for dataset %d: %w", dataset, err)
	}
	return idx, nil
}

// Missing returns the indexed references whose document is absent from the
// dataset's document directory or was left empty by a failed download,
// ordered by number. It reads only the index and the local filesystem.
func (s *Scraper) Missing(ctx context.Context, dataset int) ([]internal.Reference, error) {
	idx, err := s.Index(ctx, dataset)
	if err != nil {
		return nil, err
	}

	sizes, err := local.Sizes(s.layout.DocumentDir(dataset))
	if err != nil {
		return nil, err
	}

	var missing []internal.Reference
	for _, ref := range idx.Sorted() {
		if sizes[ref.Filename] > 0 {
			continue
		}
		missing = append(missing, ref)
	}

	s.logger.Debug("Reconciled index against disk",
		zap.Int("dataset", dataset),
		zap.Int("indexed", idx.Len()),
		zap.Int("missing", len(missing)),
	)
	return missing, nil
}

func (s *Scraper) MissingURLs(ctx context.Context, dataset int) ([]string, error) {
	missing, err := s.Missing(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return internal.URLs(missing), nil
}

// Status summarises the scrape and download progress of one dataset.
type Status struct {
	Dataset    int       `json:"dataset"`
	Indexed    int       `json:"indexed"`
	LastPage   int       `json:"last_page"`
	Complete   bool      `json:"complete"`
	Started    bool      `json:"started"`
	Downloaded int       `json:"downloaded"`
	Missing    int       `json:"missing"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Progress renders the scrape progress the way the status command prints it.
func (st Status) Progress() string {
	if !st.Started {
		return "not started"
	}
	if st.Complete {
		return fmt.Sprintf("%d files indexed (complete)", st.Indexed)
	}
	return fmt.Sprintf("%d files indexed (page %d)", st.Indexed, st.LastPage)
}

func (s *Scraper) Status(ctx context.Context, dataset int) (Status, error) {
	idx, err := s.Index(ctx, dataset)
	if err != nil {
		return Status{}, err
	}

	sizes, err := local.Sizes(s.layout.DocumentDir(dataset))
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Dataset:   dataset,
		Indexed:   idx.Len(),
		LastPage:  idx.LastPage,
		Complete:  idx.Complete,
		Started:   idx.HasProgress(),
		UpdatedAt: idx.UpdatedAt,
	}
	for _, ref := range idx.Files {
		if sizes[ref.Filename] > 0 {
			st.Downloaded++
		} else {
			st.Missing++
		}
	}
	return st, nil
}

// Statuses reports every dataset in the catalog, in catalog order.
func (s *Scraper) Statuses(ctx context.Context) ([]Status, error) {
	var out []Status
	for _, n := range s.catalog.Numbers() {
		st, err := s.Status(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Scraper) Layout() local.Layout {
	return s.layout
}
