package main

import (
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwcorp/tickdesk/internal/adapters/datafile"
	"github.com/jwcorp/tickdesk/internal/adapters/notify"
	"github.com/jwcorp/tickdesk/internal/backtest"
	"github.com/jwcorp/tickdesk/internal/candles"
	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/strategy"
)

// runPortfolio hace un backtest cross-sectional de momentum sobre un panel
// de símbolos. Los ticks de cada símbolo salen del mismo directorio,
// filtrados por la columna symbol.
func runPortfolio(args []string) error {
	fs := flag.NewFlagSet("portfolio", flag.ExitOnError)
	configPath, verbose, logFormat := commonFlags(fs)
	ticksPath := fs.String("ticks", "", "CSV de aggTrades con columna symbol (archivo o directorio)")
	symbolsFlag := fs.String("symbols", "", "símbolos del panel, separados por comas")
	positionPct := fs.Float64("pct", 0.9, "fracción del equity desplegable en cada rebalanceo")
	lookback := fs.Int("lookback", 20, "ventana de retorno en barras para el ranking")
	rebalance := fs.Int("rebalance", 10, "cada cuántas barras se rebalancea")
	topN := fs.Int("top", 2, "cuántos símbolos mantener en cartera")
	showAll := fs.Bool("all-trades", false, "imprime el ledger completo en vez de los últimos 20")
	fs.Parse(args)

	if *ticksPath == "" {
		return fmt.Errorf("portfolio: falta -ticks")
	}
	if *symbolsFlag == "" {
		return fmt.Errorf("portfolio: falta -symbols")
	}
	symbols := strings.Split(strings.ToUpper(*symbolsFlag), ",")

	cfg, err := loadConfig(*configPath, *verbose, *logFormat)
	if err != nil {
		return err
	}

	panel, err := buildPanel(*ticksPath, symbols, cfg.CandleType(), cfg.Candle.Size)
	if err != nil {
		return err
	}

	strat, err := strategy.NewMomentum(strategy.Params{
		Extra: map[string]float64{"top_n": float64(*topN)},
	})
	if err != nil {
		return err
	}

	takerFee := cfg.Trader.TakerFeeRate
	if takerFee == 0 {
		takerFee = cfg.Trader.FeeRate
	}

	runner, err := backtest.NewPortfolioRunner(backtest.PortfolioConfig{
		Symbols:         symbols,
		InitialCapital:  cfg.Trader.InitialCapital,
		PositionSizePct: *positionPct,
		LookbackBars:    *lookback,
		RebalanceBars:   *rebalance,
		TakerFeeRate:    takerFee,
	}, strat)
	if err != nil {
		return err
	}

	slog.Info("portfolio backtest starting",
		"symbols", symbols,
		"lookback_bars", *lookback,
		"rebalance_bars", *rebalance,
		"top_n", *topN,
	)

	report, err := runner.Run(panel)
	if err != nil {
		return err
	}
	return notify.NewConsole(*showAll).NotifyReport(report, runner.Trades())
}

// buildPanel agrega los ticks de cada símbolo en velas con la misma
// configuración, releyendo la fuente una vez por símbolo.
func buildPanel(path string, symbols []string, typ domain.CandleType, size float64) (map[string][]domain.Candle, error) {
	panel := make(map[string][]domain.Candle, len(symbols))
	for _, sym := range symbols {
		src, err := datafile.NewTickReader(path, sym)
		if err != nil {
			return nil, err
		}

		builder, err := candles.New(typ, size)
		if err != nil {
			src.Close()
			return nil, err
		}

		var bars []domain.Candle
		for {
			trade, ok, err := src.Next()
			if err != nil {
				src.Close()
				return nil, fmt.Errorf("portfolio: leer ticks de %s: %w", sym, err)
			}
			if !ok {
				break
			}
			bar, err := builder.Ingest(trade)
			if err != nil {
				src.Close()
				return nil, fmt.Errorf("portfolio: agregar ticks de %s: %w", sym, err)
			}
			if bar != nil {
				bars = append(bars, *bar)
			}
		}
		src.Close()

		if len(bars) == 0 {
			return nil, fmt.Errorf("portfolio: %s no produjo ninguna barra completa", sym)
		}
		panel[sym] = bars
		slog.Debug("panel symbol aggregated", "symbol", sym, "bars", len(bars))
	}

	// El runner exige series alineadas: recortar todas al mínimo común.
	minBars := -1
	for _, bars := range panel {
		if minBars < 0 || len(bars) < minBars {
			minBars = len(bars)
		}
	}
	for sym, bars := range panel {
		panel[sym] = bars[:minBars]
	}
	return panel, nil
}
