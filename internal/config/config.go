// Package config loads process settings for the deepquery binaries from
// defaults, an optional YAML file and DEEPQUERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

const EnvPrefix = "DEEPQUERY"

type Config struct {
	DBPath      string `mapstructure:"db_path" validate:"required"`
	TempDir     string `mapstructure:"temp_dir" validate:"required"`
	DownloadDir string `mapstructure:"download_dir"`
	EngineQuery string `mapstructure:"engine_command" validate:"required"`
	EngineStore string `mapstructure:"engine_store_command" validate:"required"`
	SampleRate  int    `mapstructure:"sample_rate" validate:"gte=8000"`
	LogLevel    string `mapstructure:"log_level"`
	ServerAddr  string `mapstructure:"server_addr"`
	CacheSize   int    `mapstructure:"cache_size" validate:"gte=0"`
	// LibraryRoot confines server-side path queries; empty disables them.
	LibraryRoot    string   `mapstructure:"library_root"`
	AllowedOrigins []string `mapstructure:"allow_origins"`

	SegmentLength float64 `mapstructure:"segment_length" validate:"gt=0"`
	Overlap       float64 `mapstructure:"overlap" validate:"gte=0,ltfield=SegmentLength"`
	MinSegments   int     `mapstructure:"min_segments" validate:"gte=0"`

	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout" validate:"gt=0"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
}

// Params returns the default deep query parameters from the loaded settings.
func (c *Config) Params() models.Params {
	return models.Params{
		SegmentLength: c.SegmentLength,
		Overlap:       c.Overlap,
		MinSegments:   c.MinSegments,
	}
}

func SetDefaults(v *viper.Viper) {
	params := models.DefaultParams()

	v.SetDefault("db_path", "deepquery.sqlite3")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("download_dir", filepath.Join(os.TempDir(), "deepquery_downloads"))
	v.SetDefault("engine_command", "panako query")
	v.SetDefault("engine_store_command", "panako store")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("log_level", "info")
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("cache_size", 128)
	v.SetDefault("allow_origins", []string{"*"})
	v.SetDefault("library_root", "")
	v.SetDefault("segment_length", params.SegmentLength)
	v.SetDefault("overlap", params.Overlap)
	v.SetDefault("min_segments", params.MinSegments)
	v.SetDefault("probe_timeout", 30*time.Second)
	v.SetDefault("extract_timeout", 60*time.Second)
	v.SetDefault("query_timeout", 2*time.Minute)
}

// Load reads settings into v and decodes them. An explicit file must exist;
// without one, deepquery.yaml is looked up in the working directory and
// ~/.config/deepquery and silently skipped when absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("deepquery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "deepquery"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
