package aria2

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/transfer"
	"go.uber.org/zap"
)

const (
	DefaultBinary = "aria2c"

	// dhtMinSize is the size below which a DHT cache is considered corrupt.
	dhtMinSize = 100
)

const InstallInstructions = `aria2c is required but not found. Please install it:

Windows (winget):  winget install aria2.aria2
Windows (scoop):   scoop install aria2
macOS (brew):      brew install aria2
Linux (apt):       sudo apt install aria2
Linux (yum):       sudo yum install aria2`

var _ transfer.Transferer = (*Client)(nil)

// Client drives the aria2c download accelerator.
type Client struct {
	binary   string
	runner   Runner
	cookie   string
	cacheDir string
	tempDir  string
	logger   *zap.Logger
}

type Option func(*Client)

func WithBinary(binary string) Option {
	return func(c *Client) {
		c.binary = binary
	}
}

func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithCacheDir sets where aria2 keeps its DHT routing table.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithTempDir sets where batch input files are written.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.tempDir = dir
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "aria2")
	}
	return filepath.Join(home, ".cache", "aria2")
}

func New(opts ...Option) *Client {
	c := &Client{
		binary:   DefaultBinary,
		runner:   NewExecRunner(),
		cookie:   catalog.ConsentCookie,
		cacheDir: DefaultCacheDir(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fails with transfer.ErrToolMissing when aria2c is not on the PATH.
func (c *Client) Check() error {
	if _, err := c.runner.LookPath(c.binary); err != nil {
		return fmt.Errorf("%w: %s\n\n%s", transfer.ErrToolMissing, c.binary, InstallInstructions)
	}
	return nil
}

func (c *Client) DHTPath() string {
	return filepath.Join(c.cacheDir, "dht.dat")
}

// RepairDHT makes sure the DHT cache directory exists and drops a cache file
// too small to be valid, which aria2 would otherwise fail to load.
func (c *Client) RepairDHT() error {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}

	info, err := os.Stat(c.DHTPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < dhtMinSize {
		c.logger.Warn("Removing corrupt DHT cache",
			zap.String("path", c.DHTPath()),
			zap.Int64("size", info.Size()),
		)
		return os.Remove(c.DHTPath())
	}
	return nil
}

// Fetch downloads a single archive or swarm resource. A direct download whose
// file already exists is skipped.
func (c *Client) Fetch(ctx context.Context, r transfer.Resource) transfer.Outcome {
	out := transfer.Outcome{Target: r.Location, Path: r.Path()}

	if err := c.Check(); err != nil {
		out.Err = err
		return out
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		out.Err = err
		return out
	}

	var args []string
	switch r.Kind {
	case transfer.KindDirect:
		if out.Path != "" && transfer.Present(out.Path) {
			c.logger.Info("Already downloaded", zap.String("path", out.Path))
			out.Skipped = true
			return out
		}
		args = DirectArgs(r.Location, r.Dir, r.Filename, c.cookie)
	case transfer.KindSwarm:
		if err := c.RepairDHT(); err != nil {
			out.Err = fmt.Errorf("prepare dht cache: %w", err)
			return out
		}
		args = SwarmArgs(catalog.MagnetWithTrackers(r.Location), r.Dir, c.DHTPath())
	default:
		out.Err = fmt.Errorf("unknown resource kind %q", r.Kind)
		return out
	}

	c.logger.Info("Starting transfer",
		zap.String("kind", string(r.Kind)),
		zap.String("dir", r.Dir),
		zap.String("file", r.Filename),
	)
	if err := c.runner.Run(ctx, c.binary, args); err != nil {
		out.Err = fmt.Errorf("%s: %w", c.binary, err)
	}
	return out
}

// Batch downloads every request with at most concurrency transfers in
// flight. Outcomes are decided by the files present once aria2c exits. The
// returned error is reserved for failures to start the batch at all.
func (c *Client) Batch(ctx context.Context, reqs []transfer.Request, concurrency int) (transfer.Report, error) {
	if len(reqs) == 0 {
		return transfer.Report{}, nil
	}
	if err := c.Check(); err != nil {
		return transfer.Report{}, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	for _, dir := range uniqueDirs(reqs) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return transfer.Report{}, err
		}
	}

	input, err := os.CreateTemp(c.tempDir, "docket-urls-*.txt")
	if err != nil {
		return transfer.Report{}, err
	}
	defer os.Remove(input.Name())

	if _, err := input.WriteString(InputFile(reqs)); err != nil {
		input.Close()
		return transfer.Report{}, err
	}
	if err := input.Close(); err != nil {
		return transfer.Report{}, err
	}

	c.logger.Info("Starting batch",
		zap.Int("files", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	var runErr error
	if err := c.runner.Run(ctx, c.binary, BatchArgs(input.Name(), concurrency, c.cookie)); err != nil {
		runErr = fmt.Errorf("%s: %w", c.binary, err)
	}

	report := transfer.Resolve(reqs, runErr)
	c.logger.Info("Batch finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Error(runErr),
	)
	return report, nil
}

func uniqueDirs(reqs []transfer.Request) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, r := range reqs {
		if _, ok := seen[r.Dir]; ok {
			continue
		}
		seen[r.Dir] = struct{}{}
		dirs = append(dirs, r.Dir)
	}
	return dirs
}
