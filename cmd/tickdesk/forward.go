package main

import (
	"context"
	"flag"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jwcorp/tickdesk/internal/adapters/binance"
	"github.com/jwcorp/tickdesk/internal/adapters/notify"
	"github.com/jwcorp/tickdesk/internal/adapters/storage"
	"github.com/jwcorp/tickdesk/internal/forward"
)

// runForward opera en paper contra el stream combinado de Binance hasta que
// expira la duración o llega una señal.
func runForward(args []string) error {
	fs := flag.NewFlagSet("forward", flag.ExitOnError)
	configPath, verbose, logFormat := commonFlags(fs)
	duration := fs.Duration("duration", 0, "duración de la sesión (0 = hasta Ctrl-C)")
	showAll := fs.Bool("all-trades", false, "imprime el ledger completo en vez de los últimos 20")
	noSave := fs.Bool("no-save", false, "no persiste el run en SQLite")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath, *verbose, *logFormat)
	if err != nil {
		return err
	}

	stream, err := binance.NewCombinedStream(binance.Config{
		Symbol:        strings.ToLower(cfg.Run.Symbol),
		DepthLevels:   cfg.Binance.DepthLevels,
		UpdateSpeed:   cfg.Binance.UpdateSpeed,
		MaxReconnects: cfg.Binance.MaxReconnects,
		BaseURL:       cfg.Binance.BaseURL,
	})
	if err != nil {
		return err
	}

	trader, err := newTrader(cfg)
	if err != nil {
		return err
	}
	strat, err := newStrategy(cfg)
	if err != nil {
		return err
	}

	runner := forward.New(forward.Config{Symbol: cfg.Run.Symbol}, strat, trader, stream)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("forward session starting",
		"symbol", cfg.Run.Symbol,
		"strategy", strat.Name(),
		"duration", *duration,
		"url", stream.URL(),
	)

	if err := runner.Run(ctx, *duration); err != nil {
		return err
	}

	report := runner.Report()
	if err := notify.NewConsole(*showAll).NotifyReport(report, trader.Trades()); err != nil {
		return err
	}

	if !*noSave && len(trader.Trades()) > 0 {
		store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer saveCancel()

		runID, err := store.SaveRun(saveCtx, report, trader.Trades(), nil)
		if err != nil {
			return err
		}
		slog.Info("run saved", "run_id", runID, "dsn", cfg.Storage.DSN)
	}
	return nil
}
