package storage

// sqlite.go: persistencia de runs completos.
//
// Estrategia:
//   - `runs`: una fila por run con el resumen de métricas entero.
//   - `trades`: una fila por fill del ledger, colgada del run.
//   - `equity`: una fila por muestra de la curva de equity.
//   - Prune automático al arrancar: runs > 90d se borran con sus trades
//     y muestras.

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwcorp/tickdesk/internal/domain"
	"github.com/jwcorp/tickdesk/internal/performance"
)

const schema = `
-- Una fila por run: el reporte entero desnormalizado
CREATE TABLE IF NOT EXISTS runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at      DATETIME NOT NULL,
    strategy        TEXT     NOT NULL,
    symbol          TEXT     NOT NULL,
    start_time      DATETIME NOT NULL,
    end_time        DATETIME NOT NULL,
    initial_capital REAL     NOT NULL,
    final_capital   REAL     NOT NULL,
    total_return    REAL     NOT NULL DEFAULT 0,
    total_trades    INTEGER  NOT NULL DEFAULT 0,
    winning_trades  INTEGER  NOT NULL DEFAULT 0,
    losing_trades   INTEGER  NOT NULL DEFAULT 0,
    win_rate        REAL     NOT NULL DEFAULT 0,
    profit_factor   REAL,             -- NULL = +Inf (sin perdedoras)
    avg_win         REAL     NOT NULL DEFAULT 0,
    avg_loss        REAL     NOT NULL DEFAULT 0,
    max_drawdown    REAL     NOT NULL DEFAULT 0,
    sharpe_ratio    REAL     NOT NULL DEFAULT 0,
    total_fees      REAL     NOT NULL DEFAULT 0
);

-- Ledger de fills del run
CREATE TABLE IF NOT EXISTS trades (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER  NOT NULL REFERENCES runs(id),
    ts     DATETIME NOT NULL,
    side   TEXT     NOT NULL,
    price  REAL     NOT NULL,
    qty    REAL     NOT NULL,
    fee    REAL     NOT NULL DEFAULT 0,
    pnl    REAL     NOT NULL DEFAULT 0
);

-- Curva de equity muestreada
CREATE TABLE IF NOT EXISTS equity (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     INTEGER  NOT NULL REFERENCES runs(id),
    ts         DATETIME NOT NULL,
    equity     REAL     NOT NULL,
    drawdown   REAL     NOT NULL DEFAULT 0,
    cum_pnl    REAL     NOT NULL DEFAULT 0,
    cum_return REAL     NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_run   ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_equity_run   ON equity(run_id);
`

// retentionRuns es cuánto histórico de runs se conserva.
const retentionRuns = 90 * 24 * time.Hour

// SQLiteStore implementa ports.ReportStore usando SQLite (pure Go, sin
// CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia runs antiguos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveRun persiste el reporte, el ledger y la curva en una transacción.
func (s *SQLiteStore) SaveRun(ctx context.Context, r performance.Report, trades []domain.Trade, equity []domain.EquityPoint) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	// +Inf no es representable de forma portable en REAL: NULL lo marca.
	profitFactor := sql.NullFloat64{Float64: r.ProfitFactor, Valid: !math.IsInf(r.ProfitFactor, 1)}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(created_at, strategy, symbol, start_time, end_time,
			 initial_capital, final_capital, total_return,
			 total_trades, winning_trades, losing_trades, win_rate,
			 profit_factor, avg_win, avg_loss, max_drawdown, sharpe_ratio, total_fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), r.StrategyName, r.Symbol, r.StartTime.UTC(), r.EndTime.UTC(),
		r.InitialCapital, r.FinalCapital, r.TotalReturn,
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate,
		profitFactor, r.AvgWin, r.AvgLoss, r.MaxDrawdown, r.SharpeRatio, r.TotalFees,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRun: last insert id: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trades (run_id, ts, side, price, qty, fee, pnl) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer tradeStmt.Close()
	for _, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx,
			runID, t.Timestamp.UTC(), string(t.Side), t.Price, t.Quantity, t.Fee, t.PnL,
		); err != nil {
			return 0, fmt.Errorf("storage.SaveRun: insert trade: %w", err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO equity (run_id, ts, equity, drawdown, cum_pnl, cum_return) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRun: prepare equity: %w", err)
	}
	defer equityStmt.Close()
	for _, p := range equity {
		if _, err := equityStmt.ExecContext(ctx,
			runID, p.Timestamp.UTC(), p.Equity, p.Drawdown, p.CumulativePnL, p.CumulativeReturnPct,
		); err != nil {
			return 0, fmt.Errorf("storage.SaveRun: insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return runID, nil
}

// LoadRun reconstruye el reporte de un run guardado junto con su ledger y
// su curva.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID int64) (performance.Report, []domain.Trade, []domain.EquityPoint, error) {
	var r performance.Report
	var profitFactor sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT strategy, symbol, start_time, end_time,
		       initial_capital, final_capital, total_return,
		       total_trades, winning_trades, losing_trades, win_rate,
		       profit_factor, avg_win, avg_loss, max_drawdown, sharpe_ratio, total_fees
		FROM runs WHERE id = ?`, runID,
	).Scan(
		&r.StrategyName, &r.Symbol, &r.StartTime, &r.EndTime,
		&r.InitialCapital, &r.FinalCapital, &r.TotalReturn,
		&r.TotalTrades, &r.WinningTrades, &r.LosingTrades, &r.WinRate,
		&profitFactor, &r.AvgWin, &r.AvgLoss, &r.MaxDrawdown, &r.SharpeRatio, &r.TotalFees,
	)
	if err != nil {
		return performance.Report{}, nil, nil, fmt.Errorf("storage.LoadRun: run %d: %w", runID, err)
	}
	if profitFactor.Valid {
		r.ProfitFactor = profitFactor.Float64
	} else {
		r.ProfitFactor = math.Inf(1)
	}

	trades, err := s.loadTrades(ctx, runID)
	if err != nil {
		return performance.Report{}, nil, nil, err
	}
	equity, err := s.loadEquity(ctx, runID)
	if err != nil {
		return performance.Report{}, nil, nil, err
	}
	return r, trades, equity, nil
}

func (s *SQLiteStore) loadTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, side, price, qty, fee, pnl FROM trades WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadRun: trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.Timestamp, &side, &t.Price, &t.Quantity, &t.Fee, &t.PnL); err != nil {
			return nil, fmt.Errorf("storage.LoadRun: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadEquity(ctx context.Context, runID int64) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, equity, drawdown, cum_pnl, cum_return FROM equity WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadRun: equity: %w", err)
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.Equity, &p.Drawdown, &p.CumulativePnL, &p.CumulativeReturnPct); err != nil {
			return nil, fmt.Errorf("storage.LoadRun: scan equity point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// pruneOld borra runs fuera de la ventana de retención con sus filas
// asociadas. Errores aquí no impiden arrancar.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns)
	for _, q := range []string{
		`DELETE FROM trades WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`,
		`DELETE FROM equity WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`,
		`DELETE FROM runs WHERE created_at < ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, cutoff); err != nil {
			return
		}
	}
}

// Close cierra la conexión.
func (s *SQLiteStore) Close() error { return s.db.Close() }
