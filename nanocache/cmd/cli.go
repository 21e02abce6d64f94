package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/arthur-debert/nanocache/internal/validation"
	"github.com/arthur-debert/nanocache/nanocache"
	"github.com/arthur-debert/nanocache/nanocache/metrics"
	"github.com/arthur-debert/nanocache/types"
)

// flag name -> configuration key
var configKeys = map[string]string{
	"ttl":               "ttl",
	"search-ttl":        "search_ttl",
	"search-cache-size": "search_cache_size",
	"log-level":         "log_level",
	"storage-backend":   "storage.backend",
	"storage-path":      "storage.path",
	"storage-key":       "storage.key",
}

// CLI wires the cache layers to a file-backed source behind cobra
// commands. Configuration comes from flags, NANOCACHE_* variables and an
// optional nanocache.yaml, in that order of precedence.
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper

	cfg      types.Config
	logger   *slog.Logger
	logFile  io.Closer
	registry *prometheus.Registry
	recorder *metrics.Prometheus
}

// NewCLI creates the command tree
func NewCLI() *CLI {
	cli := &CLI{
		viperInst: viper.New(),
		logger:    slog.New(slog.DiscardHandler),
	}
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the CLI with args
func (cli *CLI) Execute(args []string) error {
	cli.rootCmd.SetArgs(args)
	defer cli.close()
	return cli.rootCmd.Execute()
}

func (cli *CLI) close() {
	if cli.logFile != nil {
		_ = cli.logFile.Close()
		cli.logFile = nil
	}
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "nanocache",
		Short: "Read-through cache over a JSON or YAML record file",
		Long: `nanocache serves the records of a source file through the cache layers:
read-through lookups, cached searches, pagination and persistence.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOCACHE_*, e.g. NANOCACHE_STORAGE_BACKEND)
3. Configuration file (NANOCACHE_CONFIG, ./nanocache.yaml, ~/.nanocache/nanocache.yaml)
4. Defaults

Examples:
  nanocache --source users.json get 1 2 3
  nanocache --source users.yaml search ali --field name
  nanocache --source users.json page --size 10 --page 2
  nanocache --source users.json --storage-backend sqlite --storage-path cache.db persist
  nanocache --storage-backend sqlite --storage-path cache.db show`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cli.viperInst.GetBool("stats") {
				return cli.printStats(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	cli.addGlobalFlags()
}

func (cli *CLI) addGlobalFlags() {
	defaults := types.DefaultConfig()
	flags := cli.rootCmd.PersistentFlags()

	flags.String("config", "", "Configuration file (default ./nanocache.yaml)")
	flags.StringP("source", "s", "", "Record file (.json, .yaml or .yml)")
	flags.String("id-field", "id", "Field holding each record's id")
	flags.Duration("latency", 0, "Simulated latency of every source call")
	flags.String("collate", "", "Language tag used to order string ids (e.g. sv, de)")
	flags.StringP("format", "f", "json", "Output format (json|yaml)")

	flags.Duration("ttl", defaults.TTL, "How long a loaded record stays fresh")
	flags.Duration("search-ttl", defaults.SearchTTL, "How long a search result stays fresh (0 = same as --ttl)")
	flags.Int("search-cache-size", defaults.SearchCacheSize, "Maximum cached search results (0 = unbounded)")
	flags.String("storage-backend", string(defaults.Storage.Backend), "Persistence backend (memory|file|sqlite|bunt)")
	flags.String("storage-path", defaults.Storage.Path, "Directory (file) or database file (sqlite, bunt)")
	flags.String("storage-key", defaults.Storage.Key, "Key the records are persisted under")

	flags.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	flags.Bool("log-stderr", false, "Also write log records to stderr")
	flags.Bool("stats", false, "Print cache metrics to stderr when done")

	for flag, key := range configKeys {
		_ = cli.viperInst.BindPFlag(key, flags.Lookup(flag))
	}
	for _, flag := range []string{"config", "source", "id-field", "latency", "collate", "format", "log-stderr", "stats"} {
		_ = cli.viperInst.BindPFlag(flag, flags.Lookup(flag))
	}
}

// setupViperConfig configures config file discovery and environment lookup
func (cli *CLI) setupViperConfig() error {
	v := cli.viperInst
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else if configFile := os.Getenv("NANOCACHE_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("nanocache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.nanocache")
	}

	v.SetEnvPrefix("NANOCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return NewConfigError("config", err)
		}
	}
	return nil
}

// loadConfig decodes the cache configuration on top of the defaults
func (cli *CLI) loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := cli.viperInst.Unmarshal(&cfg); err != nil {
		return cfg, NewConfigError("config", err)
	}
	if err := validation.Validate(cfg); err != nil {
		return cfg, NewConfigError("config", err)
	}
	return cfg, nil
}

func (cli *CLI) setup(cmd *cobra.Command, args []string) error {
	if err := cli.setupViperConfig(); err != nil {
		return err
	}
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	cli.cfg = cfg

	logger, logFile, err := initLogging(cfg.LogLevel, cli.viperInst.GetBool("log-stderr"), cmd.ErrOrStderr())
	if err != nil {
		return WrapError("initialize logging", err)
	}
	cli.logger, cli.logFile = logger.With("command", cmd.Name()), logFile

	cli.registry = prometheus.NewRegistry()
	cli.recorder, err = metrics.NewPrometheus("nanocache", cli.registry)
	if err != nil {
		return WrapError("initialize metrics", err)
	}
	return nil
}

// options translates the configuration into cache options
func (cli *CLI) options() ([]nanocache.Option, error) {
	opts, err := nanocache.Options(cli.cfg)
	if err != nil {
		return nil, NewConfigError("config", err)
	}
	opts = append(opts, nanocache.WithLogger(cli.logger), nanocache.WithMetrics(cli.recorder))

	if tag := cli.viperInst.GetString("collate"); tag != "" {
		parsed, err := language.Parse(tag)
		if err != nil {
			return nil, NewValidationError("configure collation", "collate", tag, err.Error())
		}
		opts = append(opts, nanocache.WithCollation(parsed))
	}
	return opts, nil
}

// openSource opens the file named by --source
func (cli *CLI) openSource() (*Source, error) {
	path := cli.viperInst.GetString("source")
	if path == "" {
		return nil, NewValidationError("open source", "source", path, "a record file is required")
	}
	src, err := OpenSource(path, cli.viperInst.GetString("id-field"), cli.viperInst.GetDuration("latency"))
	if err != nil {
		return nil, WrapError("open source", err)
	}
	cli.logger.Debug("source opened", "path", path, "records", src.Len())
	return src, nil
}

// printStats writes every non-zero counter and gauge, one per line
func (cli *CLI) printStats(w io.Writer) error {
	if cli.registry == nil {
		return nil
	}
	families, err := cli.registry.Gather()
	if err != nil {
		return WrapError("gather metrics", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			if value == 0 {
				continue
			}
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// waitTimeout bounds how long a command waits for background loads
func (cli *CLI) waitTimeout() time.Duration {
	return 30*time.Second + 10*cli.viperInst.GetDuration("latency")
}
