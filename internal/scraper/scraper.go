package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/events"
	"github.com/turbolytics/docket/internal/index"
	"github.com/turbolytics/docket/internal/listing"
	"github.com/turbolytics/docket/internal/local"
	"go.uber.org/zap"
)

var (
	ErrPersist   = errors.New("index could not be persisted")
	ErrNoFetcher = errors.New("no listing fetcher configured")
)

const DefaultEmptyPageThreshold = 1

// Stop names why a scrape invocation ended.
type Stop string

const (
	StopAlreadyComplete Stop = "already_complete"
	StopMaxPages        Stop = "max_pages"
	StopEmptyPages      Stop = "empty_pages"
	StopLastPage        Stop = "last_page"
	StopFetchFailed     Stop = "fetch_failed"
	StopPersistFailed   Stop = "persist_failed"
	StopCancelled       Stop = "cancelled"
)

// PageExtractor turns a fetched listing page into references.
type PageExtractor interface {
	Extract(dataset int, body []byte) (listing.Extraction, error)
}

type Options struct {
	StartPage int
	// Explicit marks StartPage as chosen by the caller. An explicit start
	// page is used as is, and re-opens a complete index when it does not
	// lie beyond the last committed page.
	Explicit bool
	// MaxPages bounds the pages fetched by one invocation. Zero means no
	// bound.
	MaxPages int
}

type Result struct {
	RunID   string
	Dataset int
	State   State
	Stop    Stop

	// New holds the references absent from the index before this
	// invocation.
	New          []internal.Reference
	FirstPage    int
	LastPage     int
	PagesFetched int
	Warnings     int
	Complete     bool
	FetchErr     error

	persistErr error

	StartedAt  time.Time
	FinishedAt time.Time
}

type Scraper struct {
	catalog   *catalog.Catalog
	store     index.Store
	fetcher   listing.Fetcher
	extractor PageExtractor
	layout    local.Layout
	publisher events.Publisher
	runs      internal.Repository

	emptyPageThreshold int
	logger             *zap.Logger
	now                func() time.Time
}

type Option func(*Scraper)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scraper) {
		s.logger = logger
	}
}

func WithFetcher(f listing.Fetcher) Option {
	return func(s *Scraper) {
		s.fetcher = f
	}
}

func WithExtractor(e PageExtractor) Option {
	return func(s *Scraper) {
		s.extractor = e
	}
}

func WithLayout(l local.Layout) Option {
	return func(s *Scraper) {
		s.layout = l
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Scraper) {
		s.publisher = p
	}
}

// WithRuns stores a record of every scrape invocation in r.
func WithRuns(r internal.Repository) Option {
	return func(s *Scraper) {
		s.runs = r
	}
}

// WithEmptyPageThreshold sets how many consecutive pages without references
// mark a listing as exhausted.
func WithEmptyPageThreshold(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.emptyPageThreshold = n
		}
	}
}

func New(c *catalog.Catalog, store index.Store, opts ...Option) *Scraper {
	s := &Scraper{
		catalog:            c,
		store:              store,
		extractor:          listing.NewExtractor(c),
		layout:             local.NewLayout("."),
		publisher:          events.Noop{},
		emptyPageThreshold: DefaultEmptyPageThreshold,
		logger:             zap.NewNop(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape walks the dataset listing one page at a time, committing the index
// after every page. Fetch failures end the invocation without error; they are
// reported in Result.FetchErr and the next invocation resumes at the failed
// page. A failure to persist the index is returned as ErrPersist.
func (s *Scraper) Scrape(ctx context.Context, dataset int, opts Options) (*Result, error) {
	if _, err := s.catalog.Lookup(dataset); err != nil {
		return nil, err
	}
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	if opts.StartPage < 0 {
		return nil, fmt.Errorf("start page %d must not be negative", opts.StartPage)
	}

	logger := s.logger.With(zap.Int("dataset", dataset))
	fsm := NewFSM(FSMWithLogger(logger))

	idx, err := s.store.Load(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("load index for dataset %d: %w", dataset, err)
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Dataset:   dataset,
		LastPage:  idx.LastPage,
		Complete:  idx.Complete,
		StartedAt: s.now().UTC(),
	}
	defer func() {
		res.State = fsm.Current()
		res.FinishedAt = s.now().UTC()
		s.recordRun(ctx, res, logger)
	}()

	if idx.Complete && !(opts.Explicit && opts.StartPage <= idx.LastPage) {
		logger.Info("Index already complete",
			zap.Int("files", idx.Len()),
			zap.Int("last_page", idx.LastPage),
		)
		res.Stop = StopAlreadyComplete
		fsm.Transition(StateStopped)
		return res, nil
	}

	page := firstPage(idx, opts)
	res.FirstPage = page
	fsm.Transition(StateScraping)

	logger.Info("Scraping",
		zap.Int("start_page", page),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("indexed", idx.Len()),
	)

	// the empty run carries over only when this invocation continues the
	// committed frontier
	empty := 0
	if idx.HasProgress() && page == idx.LastPage+1 {
		empty = idx.EmptyPages
	}
	if empty >= s.emptyPageThreshold {
		// an earlier run reached the threshold on the page its budget ended on
		idx.Complete = true
		if err := s.store.Save(context.WithoutCancel(ctx), idx); err != nil {
			res.Stop = StopPersistFailed
			res.persistErr = fmt.Errorf("%w: dataset %d: %v", ErrPersist, dataset, err)
			fsm.Transition(StateFailed)
			return nil, res.persistErr
		}
		logger.Info("Empty page threshold already reached, index complete",
			zap.Int("last_page", idx.LastPage),
			zap.Int("empty_pages", empty),
		)
		res.Stop = StopEmptyPages
		res.Complete = true
		fsm.Transition(StateExhausted)
		return res, nil
	}
	for {
		if ctx.Err() != nil {
			res.Stop = StopCancelled
			fsm.Transition(StateStopped)
			break
		}

		body, err := s.fetcher.Fetch(ctx, dataset, page)
		if err != nil {
			if ctx.Err() != nil {
				res.Stop = StopCancelled
				fsm.Transition(StateStopped)
				break
			}
			logger.Warn("Fetch failed, stopping", zap.Int("page", page), zap.Error(err))
			res.FetchErr = err
			res.Stop = StopFetchFailed
			fsm.Transition(StateFailed)
			break
		}
		res.PagesFetched++

		extraction, err := s.extractor.Extract(dataset, body)
		if err != nil {
			logger.Warn("Unreadable page treated as empty", zap.Int("page", page), zap.Error(err))
			res.Warnings++
			extraction = listing.Extraction{}
		}

		added := idx.Merge(extraction.References, page)

		if len(extraction.References) == 0 {
			empty++
		} else {
			empty = 0
		}
		if page == idx.LastPage {
			idx.EmptyPages = empty
		}

		var stop Stop
		switch {
		case opts.MaxPages > 0 && res.PagesFetched >= opts.MaxPages:
			stop = StopMaxPages
		case len(extraction.References) == 0 && empty >= s.emptyPageThreshold:
			idx.Complete = true
			stop = StopEmptyPages
		case extraction.LastPage:
			idx.Complete = true
			stop = StopLastPage
		}

		// a fetched page is committed even when the caller has gone away
		if err := s.store.Save(context.WithoutCancel(ctx), idx); err != nil {
			res.Stop = StopPersistFailed
			res.persistErr = fmt.Errorf("%w: dataset %d page %d: %v", ErrPersist, dataset, page, err)
			fsm.Transition(StateFailed)
			return nil, res.persistErr
		}

		res.New = append(res.New, added...)
		res.LastPage = idx.LastPage
		res.Complete = idx.Complete

		logger.Info("Page committed",
			zap.Int("page", page),
			zap.Int("found", len(extraction.References)),
			zap.Int("new", len(added)),
			zap.Int("indexed", idx.Len()),
		)

		if len(added) > 0 {
			s.publish(ctx, res.RunID, dataset, page, added, logger)
		}

		if stop != "" {
			res.Stop = stop
			if idx.Complete {
				fsm.Transition(StateExhausted)
			} else {
				fsm.Transition(StateStopped)
			}
			break
		}
		page++
	}

	logger.Info("Scrape finished",
		zap.String("stop", string(res.Stop)),
		zap.Int("pages", res.PagesFetched),
		zap.Int("new", len(res.New)),
		zap.Bool("complete", res.Complete),
	)
	return res, nil
}

func firstPage(idx *index.Index, opts Options) int {
	if opts.Explicit || !idx.HasProgress() {
		return opts.StartPage
	}
	if next := idx.LastPage + 1; next > opts.StartPage {
		return next
	}
	return opts.StartPage
}

func (s *Scraper) publish(ctx context.Context, runID string, dataset, page int, refs []internal.Reference, logger *zap.Logger) {
	err := s.publisher.Publish(ctx, events.Discovery{
		RunID:      runID,
		Dataset:    dataset,
		Page:       page,
		References: refs,
		At:         s.now().UTC(),
	})
	if err != nil {
		logger.Warn("Publishing discoveries failed", zap.Int("page", page), zap.Error(err))
	}
}

// Run is the stored record of one scrape invocation.
type Run struct {
	ID            string    `json:"id"`
	Dataset       int       `json:"dataset"`
	State         State     `json:"state"`
	Stop          Stop      `json:"stop"`
	FirstPage     int       `json:"first_page"`
	LastPage      int       `json:"last_page"`
	PagesFetched  int       `json:"pages_fetched"`
	NewReferences int       `json:"new_references"`
	Warnings      int       `json:"warnings"`
	Complete      bool      `json:"complete"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func (r *Result) Run() Run {
	run := Run{
		ID:            r.RunID,
		Dataset:       r.Dataset,
		State:         r.State,
		Stop:          r.Stop,
		FirstPage:     r.FirstPage,
		LastPage:      r.LastPage,
		PagesFetched:  r.PagesFetched,
		NewReferences: len(r.New),
		Warnings:      r.Warnings,
		Complete:      r.Complete,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	switch {
	case r.persistErr != nil:
		run.Error = r.persistErr.Error()
	case r.FetchErr != nil:
		run.Error = r.FetchErr.Error()
	}
	return run
}

// RunKey is where the record of a run is stored in the runs repository.
func RunKey(dataset int, runID string) string {
	return path.Join(fmt.Sprint(dataset), runID+".json")
}

func (s *Scraper) recordRun(ctx context.Context, res *Result, logger *zap.Logger) {
	if s.runs == nil {
		return
	}
	data, err := json.MarshalIndent(res.Run(), "", "  ")
	if err != nil {
		logger.Warn("Encoding run record failed", zap.Error(err))
		return
	}
	if err := s.runs.Write(context.WithoutCancel(ctx), RunKey(res.Dataset, res.RunID), bytes.NewReader(data)); err != nil {
		logger.Warn("Writing run record failed", zap.String("run", res.RunID), zap.Error(err))
	}
}
