package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/listing"
	"github.com/turbolytics/docket/internal/scraper"
	"github.com/turbolytics/docket/internal/transfer/aria2"
	"gopkg.in/yaml.v3"
)

var ErrConfigInvalid = errors.New("invalid configuration")

const EnvPrefix = "DOCKET"

type Logger struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// Store holds the URL of a storage backend: file://, s3://, postgres:// or
// mongodb://. Empty means the output directory.
type Store struct {
	Store string `yaml:"store" mapstructure:"store"`
}

type Listing struct {
	FilesURL           string        `yaml:"files_url" mapstructure:"files_url"`
	ListingURL         string        `yaml:"listing_url" mapstructure:"listing_url"`
	Cookie             string        `yaml:"cookie" mapstructure:"cookie"`
	UserAgent          string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	EmptyPageThreshold int           `yaml:"empty_page_threshold" mapstructure:"empty_page_threshold"`
}

type Transfer struct {
	Binary      string `yaml:"binary" mapstructure:"binary"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

type Events struct {
	URL string `yaml:"url" mapstructure:"url"`
}

type Server struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type Config struct {
	Logger   Logger   `yaml:"logger" mapstructure:"logger"`
	Output   string   `yaml:"output" mapstructure:"output"`
	Index    Store    `yaml:"index" mapstructure:"index"`
	Runs     Store    `yaml:"runs" mapstructure:"runs"`
	Listing  Listing  `yaml:"listing" mapstructure:"listing"`
	Transfer Transfer `yaml:"transfer" mapstructure:"transfer"`
	Events   Events   `yaml:"events" mapstructure:"events"`
	Server   Server   `yaml:"server" mapstructure:"server"`
}

var defaults = map[string]interface{}{
	"logger.level":                 "info",
	"logger.development":           false,
	"output":                       "./epstein_files",
	"index.store":                  "",
	"runs.store":                   "",
	"listing.files_url":            catalog.DefaultFilesURL,
	"listing.listing_url":          catalog.DefaultListingURL,
	"listing.cookie":               catalog.ConsentCookie,
	"listing.user_agent":           listing.DefaultUserAgent,
	"listing.timeout":              listing.DefaultTimeout.String(),
	"listing.requests_per_second":  listing.DefaultRequestsPerSecond,
	"listing.empty_page_threshold": scraper.DefaultEmptyPageThreshold,
	"transfer.binary":              aria2.DefaultBinary,
	"transfer.concurrency":         5,
	"transfer.cache_dir":           "",
	"events.url":                   "",
	"server.addr":                  ":8080",
}

// NewFromFile reads a YAML file as is, without defaults or environment
// overrides.
func NewFromFile(fpath string) (*Config, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(bs, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load layers defaults, the optional YAML file at fpath and DOCKET_*
// environment variables, in that order. Variables from a .env file in the
// working directory are loaded first when the file exists.
func Load(fpath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fpath != "" {
		v.SetConfigFile(fpath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", fpath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("%w: output directory is required", ErrConfigInvalid)
	}
	if c.Listing.EmptyPageThreshold < 1 {
		return fmt.Errorf("%w: listing.empty_page_threshold must be at least 1", ErrConfigInvalid)
	}
	if c.Listing.Timeout <= 0 {
		return fmt.Errorf("%w: listing.timeout must be positive", ErrConfigInvalid)
	}
	if c.Transfer.Concurrency < 1 {
		return fmt.Errorf("%w: transfer.concurrency must be at least 1", ErrConfigInvalid)
	}
	if err := validateURL("index.store", c.Index.Store, "file", "s3", "postgres", "postgresql", "mongodb"); err != nil {
		return err
	}
	if err := validateURL("runs.store", c.Runs.Store, "file", "s3"); err != nil {
		return err
	}
	if err := validateURL("events.url", c.Events.URL, "kafka"); err != nil {
		return err
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigInvalid, field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: unsupported scheme %q", ErrConfigInvalid, field, u.Scheme)
}
