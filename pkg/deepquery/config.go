package deepquery

import (
	"os"
	"time"
)

type Config struct {
	TempDir        string
	SampleRate     int
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
	QueryTimeout   time.Duration
	ExcludedPaths  []string

	Logger    Logger
	Prober    DurationProber
	Extractor Extractor
	Querier   PointQuerier
	Store     RunStore
	Observer  Observer
	Progress  ProgressFunc
}

type Option func(*Config)

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithSampleRate sets the rate clips are resampled to before querying.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ProbeTimeout = d
	}
}

func WithExtractTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ExtractTimeout = d
	}
}

// WithQueryTimeout bounds each point query. A window whose query times out
// contributes nothing and the run continues.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}

// WithExcludedPaths adds identities that are never reported as candidates.
func WithExcludedPaths(paths ...string) Option {
	return func(c *Config) {
		c.ExcludedPaths = append(c.ExcludedPaths, paths...)
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithProber(p DurationProber) Option {
	return func(c *Config) {
		c.Prober = p
	}
}

func WithExtractor(e Extractor) Option {
	return func(c *Config) {
		c.Extractor = e
	}
}

func WithQuerier(q PointQuerier) Option {
	return func(c *Config) {
		c.Querier = q
	}
}

func WithStore(s RunStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observer = o
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		TempDir:        os.TempDir(),
		SampleRate:     16000,
		ProbeTimeout:   30 * time.Second,
		ExtractTimeout: 60 * time.Second,
		QueryTimeout:   2 * time.Minute,
	}
}
