package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/turbolytics/docket/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrFetch = errors.New("listing fetch failed")

const (
	DefaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) docket/1.0"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 2.0
)

// Fetcher retrieves the raw content of one listing page.
type Fetcher interface {
	Fetch(ctx context.Context, dataset int, page int) ([]byte, error)
}

type HTTPFetcher struct {
	client  *resty.Client
	urls    catalog.URLs
	limiter *rate.Limiter
	logger  *zap.Logger

	cookie    string
	userAgent string
	timeout   time.Duration
}

type FetcherOption func(*HTTPFetcher)

func WithLogger(logger *zap.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

func WithCookie(cookie string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(rps float64) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewHTTPFetcher(urls catalog.URLs, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		urls:      urls,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		logger:    zap.NewNop(),
		cookie:    catalog.ConsentCookie,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = resty.New().
		SetTimeout(f.timeout).
		SetHeader("User-Agent", f.userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	if f.cookie != "" {
		f.client.SetHeader("Cookie", f.cookie)
	}
	return f
}

// Fetch returns the page body. Transport failures and non-200 responses are
// reported as ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, dataset int, page int) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	url := f.urls.ListingURL(dataset, page)
	start := time.Now()

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}

	f.logger.Debug("Fetched listing page",
		zap.Int("dataset", dataset),
		zap.Int("page", page),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, url, resp.StatusCode())
	}
	return resp.Body(), nil
}
