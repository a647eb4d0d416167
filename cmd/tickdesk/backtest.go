package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/jwcorp/tickdesk/config"
	"github.com/jwcorp/tickdesk/internal/adapters/datafile"
	"github.com/jwcorp/tickdesk/internal/adapters/notify"
	"github.com/jwcorp/tickdesk/internal/adapters/storage"
	"github.com/jwcorp/tickdesk/internal/backtest"
	"github.com/jwcorp/tickdesk/internal/paper"
	"github.com/jwcorp/tickdesk/internal/performance"
	"github.com/jwcorp/tickdesk/internal/ports"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// runBacktest reproduce datos históricos (ticks o snapshots de orderbook)
// contra la estrategia configurada.
func runBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath, verbose, logFormat := commonFlags(fs)
	ticksPath := fs.String("ticks", "", "CSV de aggTrades (archivo o directorio)")
	bookPath := fs.String("book", "", "CSV de snapshots de orderbook (archivo o directorio)")
	showAll := fs.Bool("all-trades", false, "imprime el ledger completo en vez de los últimos 20")
	noSave := fs.Bool("no-save", false, "no persiste el run en SQLite")
	fs.Parse(args)

	if (*ticksPath == "") == (*bookPath == "") {
		return fmt.Errorf("backtest: hay que pasar exactamente uno de -ticks o -book")
	}

	cfg, err := loadConfig(*configPath, *verbose, *logFormat)
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

	slog.Info("backtest starting",
		"symbol", cfg.Run.Symbol,
		"strategy", strat.Name(),
		"capital", cfg.Trader.InitialCapital,
	)

	var report performance.Report
	var saveReport func(context.Context, ports.ReportStore) (int64, error)

	if *ticksPath != "" {
		src, err := datafile.NewTickReader(*ticksPath, cfg.Run.Symbol)
		if err != nil {
			return err
		}
		defer src.Close()

		runner, err := backtest.NewTickRunner(backtest.TickConfig{
			Symbol:     cfg.Run.Symbol,
			CandleType: cfg.CandleType(),
			CandleSize: cfg.Candle.Size,
		}, strat, trader)
		if err != nil {
			return err
		}
		if report, err = runner.Run(src); err != nil {
			return err
		}
		saveReport = runner.SaveReport
	} else {
		src, err := datafile.NewSnapshotReader(*bookPath, cfg.Run.Symbol)
		if err != nil {
			return err
		}
		defer src.Close()

		runner := backtest.NewBookRunner(backtest.BookConfig{Symbol: cfg.Run.Symbol}, strat, trader)
		if report, err = runner.Run(src); err != nil {
			return err
		}
		saveReport = runner.SaveReport
	}

	if err := notify.NewConsole(*showAll).NotifyReport(report, trader.Trades()); err != nil {
		return err
	}

	if !*noSave {
		store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		runID, err := saveReport(context.Background(), store)
		if err != nil {
			return err
		}
		slog.Info("run saved", "run_id", runID, "dsn", cfg.Storage.DSN)
	}
	return nil
}

// newTrader construye el simulador de ejecución desde el config.
func newTrader(cfg *config.Config) (*paper.Trader, error) {
	return paper.New(paper.Config{
		InitialCapital: cfg.Trader.InitialCapital,
		FeeRate:        cfg.Trader.FeeRate,
		MakerFeeRate:   cfg.Trader.MakerFeeRate,
		TakerFeeRate:   cfg.Trader.TakerFeeRate,
		Leverage:       cfg.Trader.Leverage,
		Latency:        cfg.Latency(),
	})
}

// newStrategy construye la estrategia por nombre desde el registry.
func newStrategy(cfg *config.Config) (strategy.Strategy, error) {
	return strategy.NewRegistry().New(cfg.Run.Strategy, strategy.Params{
		Quantity: cfg.Run.Quantity,
		Extra:    cfg.Run.Params,
	})
}
