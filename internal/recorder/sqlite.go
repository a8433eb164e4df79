package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"MomentumTrader/internal/model"
)

// SQLiteRecorder persists trades and price frames to a SQLite database shared by
// the ingester and trading cycle processes.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the trader read price frames while the ingester writes them.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol           TEXT NOT NULL,
			state            TEXT NOT NULL,
			opened_at        INTEGER NOT NULL,
			closed_at        INTEGER NOT NULL,
			duration_ms      INTEGER NOT NULL,
			buy_price        TEXT,
			buy_qty          TEXT,
			sell_price       TEXT,
			sell_qty         TEXT,
			dust             TEXT,
			profit_per_share TEXT,
			profit_total     TEXT,
			profit_relative  TEXT,
			diff_pct         TEXT,
			roc              REAL,
			rsi              REAL,
			atr              REAL,
			obv              REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed_at)`,

		`CREATE TABLE IF NOT EXISTS prices (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			ts     INTEGER NOT NULL,
			price  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_symbol_ts ON prices(symbol, ts)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTrade(ctx context.Context, t *model.TradeSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO trades
		(symbol, state, opened_at, closed_at, duration_ms,
		 buy_price, buy_qty, sell_price, sell_qty, dust,
		 profit_per_share, profit_total, profit_relative, diff_pct,
		 roc, rsi, atr, obv)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Symbol, string(t.State()), t.OpenedAt.UnixMilli(), t.ClosedAt.UnixMilli(), t.Duration.Milliseconds(),
		t.BuyPrice.String(), t.BuyQty.String(), t.SellPrice.String(), t.SellQty.String(), t.Dust.String(),
		t.ProfitPerShare.String(), t.ProfitTotal.String(), t.ProfitRelative.String(), t.DiffPct.String(),
		t.Indicators.ROC, t.Indicators.RSI, t.Indicators.ATR, t.Indicators.OBV,
	)
	return err
}

func (r *SQLiteRecorder) RecentTrades(ctx context.Context, limit int) ([]model.TradeSettlement, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		symbol, state, opened_at, closed_at, duration_ms,
		buy_price, buy_qty, sell_price, sell_qty, dust,
		profit_per_share, profit_total, profit_relative, diff_pct,
		roc, rsi, atr, obv
		FROM trades ORDER BY closed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []model.TradeSettlement
	for rows.Next() {
		var (
			t                                    model.TradeSettlement
			state                                string
			opened, closed, duration             int64
			buyPx, buyQty, sellPx, sellQty, dust string
			pps, total, rel, diff                string
		)
		if err := rows.Scan(&t.Symbol, &state, &opened, &closed, &duration,
			&buyPx, &buyQty, &sellPx, &sellQty, &dust,
			&pps, &total, &rel, &diff,
			&t.Indicators.ROC, &t.Indicators.RSI, &t.Indicators.ATR, &t.Indicators.OBV); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.OpenedAt = time.UnixMilli(opened)
		t.ClosedAt = time.UnixMilli(closed)
		t.Duration = time.Duration(duration) * time.Millisecond
		t.Win = state == string(model.TradeWon)
		dec := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&t.BuyPrice, buyPx}, {&t.BuyQty, buyQty}, {&t.SellPrice, sellPx}, {&t.SellQty, sellQty},
			{&t.Dust, dust}, {&t.ProfitPerShare, pps}, {&t.ProfitTotal, total},
			{&t.ProfitRelative, rel}, {&t.DiffPct, diff},
		}
		for _, f := range dec {
			v, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("parse trade value %q: %w", f.src, err)
			}
			*f.dst = v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AppendPrices inserts a batch of ticks in one transaction.
func (r *SQLiteRecorder) AppendPrices(ctx context.Context, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (symbol, ts, price) VALUES (?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, tk := range ticks {
		if _, err := stmt.ExecContext(ctx, tk.Symbol, tk.Time.UnixMilli(), tk.Price.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert price %s: %w", tk.Symbol, err)
		}
	}
	return tx.Commit()
}

// RecentPrices returns the chronological price frame of symbol since the given time.
func (r *SQLiteRecorder) RecentPrices(ctx context.Context, symbol string, since time.Time) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, price FROM prices WHERE symbol = ? AND ts >= ? ORDER BY ts, id`,
		symbol, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var ts int64
		var raw string
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		px, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", raw, err)
		}
		out = append(out, model.PricePoint{Time: time.UnixMilli(ts), Price: px})
	}
	return out, rows.Err()
}

// PrunePrices deletes price rows older than before and reports how many were removed.
func (r *SQLiteRecorder) PrunePrices(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM prices WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune prices: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
