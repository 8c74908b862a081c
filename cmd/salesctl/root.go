package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"salespulse/internal/cache"
	"salespulse/internal/config"
	"salespulse/internal/infrastructure"
	"salespulse/internal/services"
	"salespulse/pkg/contracts"
)

var errInvalidDataset = errors.New("dataset failed validation")

// cli holds the flags shared by every subcommand
type cli struct {
	configFile string
	logLevel   string
	noCache    bool
	compact    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "salesctl",
		Short:         "Validate and analyze sales datasets",
		Long:          `salesctl loads a CSV or XLSX sales export, validates and cleans it, and prints the analyses as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.ErrOrStderr())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configFile, "config", "", "config file (default: config.yaml, configs/config.yaml or $SALES_CONFIG_FILE)")
	f.StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")
	f.BoolVar(&c.noCache, "no-cache", false, "skip the result cache")
	f.BoolVar(&c.compact, "compact", false, "print JSON on a single line")

	root.AddCommand(
		newAnalyzeCmd(c),
		newValidateCmd(c),
		newStatsCmd(c),
		newCohortCmd(c),
		newBatchCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) load(stderr io.Writer) error {
	var err error
	if c.configFile != "" {
		c.cfg, err = config.LoadFrom(c.configFile)
	} else {
		c.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	c.logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: infrastructure.ParseLogLevel(c.logLevel),
	}))
	return nil
}

// service builds an AnalysisService on the configured cache backend. The
// returned close func releases the backend.
func (c *cli) service() (*services.AnalysisService, func(), error) {
	var store cache.Store
	if c.cfg.Cache.Enabled && !c.noCache {
		s, err := cache.NewStore(c.cfg.Cache, c.logger)
		if err != nil {
			c.logger.Warn("cache backend unavailable", slog.String("error", err.Error()))
		} else {
			store = s
		}
	}
	resultCache := cache.New(store, cache.Options{
		TTL:              c.cfg.Cache.TTL,
		OperationTimeout: c.cfg.Cache.OperationTimeout,
	}, c.logger)

	svc, err := services.NewAnalysisService(c.cfg, resultCache, nil, c.logger)
	if err != nil {
		resultCache.Close()
		return nil, nil, err
	}
	return svc, func() { resultCache.Close() }, nil
}

func (c *cli) options(topN int) services.AnalyzeOptions {
	opts := services.AnalyzeOptions{UseCache: !c.noCache, TopN: c.cfg.Analysis.TopN}
	if topN > 0 {
		opts.TopN = topN
	}
	return opts
}

func (c *cli) print(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if !c.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func readInput(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, filepath.Base(path), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), contracts.GetFullVersionString())
			return nil
		},
	}
}
