package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jwcorp/tickdesk/config"
)

const usage = `tickdesk: backtesting intradía y paper trading sobre datos de Binance

Uso:
  tickdesk backtest  -config config.yaml -ticks DATA [flags]
  tickdesk backtest  -config config.yaml -book DATA  [flags]
  tickdesk forward   -config config.yaml [-duration 10m] [flags]
  tickdesk portfolio -config config.yaml -ticks DIR [flags]

Cada subcomando acepta -h para ver sus flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backtest":
		err = runBacktest(os.Args[2:])
	case "forward":
		err = runForward(os.Args[2:])
	case "portfolio":
		err = runPortfolio(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "subcomando desconocido %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("tickdesk exited with error", "err", err)
		os.Exit(1)
	}
}

// commonFlags registra los flags compartidos por todos los subcomandos y
// devuelve los punteros relevantes.
func commonFlags(fs *flag.FlagSet) (configPath *string, verbose *bool, logFormat *string) {
	configPath = fs.String("config", "config.yaml", "path to config file")
	verbose = fs.Bool("verbose", false, "set log level to debug")
	logFormat = fs.String("format", "", "log format: text|json (overrides config)")
	return
}

// loadConfig carga el YAML y aplica los overrides de los flags comunes.
func loadConfig(path string, verbose bool, logFormat string) (*config.Config, error) {
	cfg, err := config.Load(path)
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

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
