package config

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/events"
	"github.com/turbolytics/docket/internal/index"
	"github.com/turbolytics/docket/internal/kafka"
	"github.com/turbolytics/docket/internal/listing"
	"github.com/turbolytics/docket/internal/local"
	"github.com/turbolytics/docket/internal/mongo"
	"github.com/turbolytics/docket/internal/postgres"
	"github.com/turbolytics/docket/internal/s3"
	"github.com/turbolytics/docket/internal/scraper"
	"github.com/turbolytics/docket/internal/transfer/aria2"
	"go.uber.org/zap"
)

func NewLogger(c Logger) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: logger.level: %v", ErrConfigInvalid, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func (c *Config) URLs() catalog.URLs {
	return catalog.URLs{
		FilesURL:    c.Listing.FilesURL,
		ListingBase: c.Listing.ListingURL,
	}
}

func (c *Config) Layout() local.Layout {
	return local.NewLayout(c.Output)
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func filePath(raw string) string {
	return filepath.FromSlash(strings.TrimPrefix(raw, "file://"))
}

// OpenIndexStore selects the index backend from index.store. An empty store
// keeps the index files next to the downloads in the output directory.
func OpenIndexStore(ctx context.Context, c *Config, logger *zap.Logger) (index.Store, error) {
	logger = orNop(logger)
	raw := c.Index.Store
	if raw == "" {
		return index.NewFileStore(c.Output, logger), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "file":
		return index.NewFileStore(filePath(raw), logger), nil
	case "s3":
		repo, err := openS3(u, logger)
		if err != nil {
			return nil, err
		}
		return s3.NewIndexStore(repo), nil
	case "postgres", "postgresql":
		return postgres.NewIndexStore(ctx, u, logger)
	case "mongodb":
		return mongo.NewIndexStore(ctx, u, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported index store %q", ErrConfigInvalid, u.Scheme)
	}
}

// OpenRuns selects where run records are written.
func OpenRuns(c *Config, logger *zap.Logger) (internal.Repository, error) {
	logger = orNop(logger)
	raw := c.Runs.Store
	if raw == "" {
		return local.New(c.Layout().RunsDir(), local.WithLogger(logger)), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "file":
		return local.New(filePath(raw), local.WithLogger(logger)), nil
	case "s3":
		return openS3(u, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported runs store %q", ErrConfigInvalid, u.Scheme)
	}
}

func openS3(u *url.URL, logger *zap.Logger) (*s3.Repository, error) {
	opts, err := s3.OptionsFromURL(u)
	if err != nil {
		return nil, err
	}
	opts = append(opts, s3.WithLogger(logger))
	return s3.New(opts...)
}

func OpenPublisher(c *Config, logger *zap.Logger) (events.Publisher, error) {
	logger = orNop(logger)
	if c.Events.URL == "" {
		return events.Noop{}, nil
	}

	u, err := url.Parse(c.Events.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "kafka" {
		return nil, fmt.Errorf("%w: unsupported events url %q", ErrConfigInvalid, u.Scheme)
	}
	return kafka.NewPublisher(u, logger)
}

func NewFetcher(c *Config, logger *zap.Logger) *listing.HTTPFetcher {
	logger = orNop(logger)
	return listing.NewHTTPFetcher(c.URLs(),
		listing.WithLogger(logger),
		listing.WithCookie(c.Listing.Cookie),
		listing.WithUserAgent(c.Listing.UserAgent),
		listing.WithTimeout(c.Listing.Timeout),
		listing.WithRateLimit(c.Listing.RequestsPerSecond),
	)
}

func NewTransferer(c *Config, logger *zap.Logger) *aria2.Client {
	logger = orNop(logger)
	opts := []aria2.Option{
		aria2.WithLogger(logger),
		aria2.WithCookie(c.Listing.Cookie),
	}
	if c.Transfer.Binary != "" {
		opts = append(opts, aria2.WithBinary(c.Transfer.Binary))
	}
	if c.Transfer.CacheDir != "" {
		opts = append(opts, aria2.WithCacheDir(c.Transfer.CacheDir))
	}
	return aria2.New(opts...)
}

// Pipeline is every component a command needs, built from one Config.
type Pipeline struct {
	Config   *Config
	Catalog  *catalog.Catalog
	Scraper  *scraper.Scraper
	Transfer *aria2.Client
	Runs     internal.Repository

	closers []io.Closer
}

func (p *Pipeline) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func Initialize(ctx context.Context, c *Config, logger *zap.Logger) (*Pipeline, error) {
	logger = orNop(logger)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		Config:  c,
		Catalog: catalog.Default(c.URLs()),
	}

	store, err := OpenIndexStore(ctx, c, logger.Named("index"))
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(io.Closer); ok {
		p.closers = append(p.closers, closer)
	}

	runs, err := OpenRuns(c, logger.Named("runs"))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Runs = runs

	publisher, err := OpenPublisher(c, logger.Named("events"))
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, publisher)

	p.Scraper = scraper.New(p.Catalog, store,
		scraper.WithLogger(logger.Named("scraper")),
		scraper.WithFetcher(NewFetcher(c, logger.Named("listing"))),
		scraper.WithLayout(c.Layout()),
		scraper.WithPublisher(publisher),
		scraper.WithRuns(runs),
		scraper.WithEmptyPageThreshold(c.Listing.EmptyPageThreshold),
	)
	p.Transfer = NewTransferer(c, logger.Named("aria2"))
	return p, nil
}
