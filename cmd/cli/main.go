package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/himanishpuri/DeepQuery/internal/config"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/engine"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/storage"
	"github.com/himanishpuri/DeepQuery/pkg/logger"
)

// cli carries state shared by every subcommand.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	out     io.Writer
}

func main() {
	c := &cli{v: viper.New(), out: os.Stdout}
	if err := newRootCommand(c).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "deepquery",
		Short:         "Find where a long recording matches an audio fingerprint index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initialize()
		},
	}
	root.SetOut(c.out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "Config file (default ./deepquery.yaml)")
	flags.String("db", "", "Path to the SQLite run history / manifest database")
	flags.String("temp", "", "Directory for scratch clips")
	flags.String("engine", "", `Point-query command, e.g. "panako query"`)
	flags.String("engine-store", "", `Store command, e.g. "panako store"`)
	flags.Int("rate", 0, "Sample rate of extracted clips")
	flags.String("log-level", "", "Log level (debug, info, warn)")

	for key, flag := range map[string]string{
		"db_path":              "db",
		"temp_dir":             "temp",
		"engine_command":       "engine",
		"engine_store_command": "engine-store",
		"sample_rate":          "rate",
		"log_level":            "log-level",
	} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newQueryCommand(c),
		newBatchCommand(c),
		newStoreCommand(c),
		newManifestCommand(c),
		newRunsCommand(c),
	)
	return root
}

func (c *cli) initialize() error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.log = logger.GetLogger()
	c.log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	c.log.Debugf("Config: db=%s temp=%s engine=%q", cfg.DBPath, cfg.TempDir, cfg.EngineQuery)
	return nil
}

func printBanner(w io.Writer) {
	banner := `
 ____                  ___
|  _ \  ___  ___ _ __ / _ \ _   _  ___ _ __ _   _
| | | |/ _ \/ _ \ '_ \ | | | | | |/ _ \ '__| | | |
| |_| |  __/  __/ |_) | |_| | |_| |  __/ |  | |_| |
|____/ \___|\___| .__/ \__\_\\__,_|\___|_|   \__, |
                |_|                          |___/
        Segmented audio search over a fingerprint index
`
	fmt.Fprintln(w, banner)
}

func (c *cli) openStore() (*storage.DBClient, error) {
	db, err := storage.NewDBClientWithPath(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (c *cli) engine() *engine.CommandQuerier {
	q := engine.NewCommandQuerier(
		engine.ParseCommand(c.cfg.EngineQuery),
		engine.ParseCommand(c.cfg.EngineStore),
	)
	q.Timeout = c.cfg.QueryTimeout
	return q
}

// createService wires a deep query service to the configured engine and database.
func (c *cli) createService(opts ...deepquery.Option) (deepquery.Service, error) {
	db, err := c.openStore()
	if err != nil {
		return nil, err
	}

	base := []deepquery.Option{
		deepquery.WithTempDir(c.cfg.TempDir),
		deepquery.WithSampleRate(c.cfg.SampleRate),
		deepquery.WithProbeTimeout(c.cfg.ProbeTimeout),
		deepquery.WithExtractTimeout(c.cfg.ExtractTimeout),
		deepquery.WithQueryTimeout(c.cfg.QueryTimeout),
		deepquery.WithLogger(c.log.WithPrefix("deepquery")),
		deepquery.WithQuerier(c.engine()),
		deepquery.WithStore(db),
	}
	svc, err := deepquery.NewService(append(base, opts...)...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
