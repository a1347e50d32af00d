// Package cli implements the colflow command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/paveg/colflow/internal/config"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/monitoring"
)

// RootOptions holds global flags and the state derived from them before a
// subcommand runs.
type RootOptions struct {
	ConfigFile  string
	LogLevel    string
	MetricsAddr string

	cfg     config.Config
	logger  log.Logger
	metrics *monitoring.Metrics
	server  *monitoring.Server
}

// NewRootCommand creates the root command for the colflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "colflow",
		Short: "Columnar IR optimizer and vectorized runtime",
		Long: `colflow lowers columnar operator graphs (range fusion, projection path
fusion, selection pushdown) and runs vectorized pipelines over dense matrices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "configuration file (.json or .yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	cmd.AddCommand(NewOptimizeCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewCalcCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// setup resolves the configuration (file, then COLFLOW_* environment, then
// flags) and builds the logger and metrics shared by subcommands.
func (o *RootOptions) setup(stderr io.Writer) error {
	cfg := config.LoadFromEnv()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(o.ConfigFile); err != nil {
			return err
		}
		cfg = config.ApplyEnv(cfg)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
		cfg.MetricsCollection = true
	}
	cfg, warnings, err := config.NewConfigValidator().Validate(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	config.SetGlobalConfig(cfg)
	o.cfg = cfg

	logger, err := logging.New(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	o.logger = logger
	for _, w := range warnings {
		level.Warn(logger).Log("msg", "configuration", "warning", w)
	}
	level.Debug(logger).Log("msg", "configuration resolved", "threads", cfg.Threads, "partitioning", cfg.Partitioning)

	if !cfg.MetricsCollection {
		return nil
	}
	o.metrics = monitoring.NewMetrics()
	if cfg.MetricsAddr != "" {
		o.server = monitoring.NewServer(o.metrics, cfg.MetricsAddr)
		go func() {
			if err := o.server.Start(); err != nil {
				level.Error(logger).Log("msg", "metrics server stopped", "err", err)
			}
		}()
		level.Info(logger).Log("msg", "serving metrics", "addr", cfg.MetricsAddr)
	}
	return nil
}

func (o *RootOptions) teardown() error {
	if o.server == nil {
		return nil
	}
	return o.server.Stop()
}

// readDocument decodes the graph document at path; "-" reads stdin.
func readDocument(cmd *cobra.Command, path string) (*ir.Document, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	doc, err := ir.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
