package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/ertvault/config"
)

var (
	configPath string
	verbose    bool
	logFormat  string
	callerAddr string
)

var rootCmd = &cobra.Command{
	Use:   "ertd",
	Short: "Capital risk and settlement engine for execution rights",
	Long: `ertd runs the vault, execution-right and settlement engine.

LPs deposit into a shared vault; executors post stake and mint execution
rights (ERTs) that allocate vault capital for a bounded time. Settlement
splits PnL between LPs, the insurance reserve and the executor.

Run "ertd serve" for the HTTP API and expiry sweeper, or use the
subcommands for one-off operations against the same ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set log level to debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "format", "", "log format: text|json (overrides config)")
	rootCmd.PersistentFlags().StringVar(&callerAddr, "as", "", "caller address for authorized operations")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig carga la config y configura el logger global.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout queda para los reportes del CLI
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
