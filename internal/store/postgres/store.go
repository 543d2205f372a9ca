// Package postgres implements store.TickStore on top of sqlx + lib/pq.
//
// Expected schema (migrations are applied externally, per spec §6.4):
//
//	CREATE TABLE ticks (
//	    symbol      TEXT NOT NULL,
//	    trade_id    BIGINT NOT NULL,
//	    ts          TIMESTAMPTZ NOT NULL,
//	    price       NUMERIC NOT NULL,
//	    qty         NUMERIC NOT NULL,
//	    side        SMALLINT NOT NULL,
//	    UNIQUE (symbol, trade_id)
//	);
//	CREATE INDEX ticks_symbol_ts_idx ON ticks (symbol, ts);
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/store"
	"github.com/sawpanic/cryptorun/internal/tick"
)

const pqUniqueViolation = "23505"

// Store is the sqlx-backed TickStore implementation.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	retry   store.RetryPolicy
}

// Open connects to Postgres using dsn and wraps it with the default
// per-operation timeout (5s, per spec §5) and retry policy.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return New(db), nil
}

// New wraps an already-open sqlx.DB. Callers own the connection pool
// sizing (db.SetMaxOpenConns, db.SetMaxIdleConns, db.SetConnMaxLifetime)
// per the database.{max,min}_connections / max_lifetime config keys.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: 5 * time.Second, retry: store.DefaultRetryPolicy()}
}

type tickRow struct {
	Symbol  string    `db:"symbol"`
	TradeID int64     `db:"trade_id"`
	TS      time.Time `db:"ts"`
	Price   string    `db:"price"`
	Qty     string    `db:"qty"`
	Side    int16     `db:"side"`
}

func toRow(t tick.Tick) tickRow {
	return tickRow{
		Symbol:  string(t.Symbol),
		TradeID: int64(t.TradeID),
		TS:      t.TS,
		Price:   t.Price.String(),
		Qty:     t.Qty.String(),
		Side:    int16(t.Side),
	}
}

func fromRow(r tickRow) (tick.Tick, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("postgres: parse price: %w", err)
	}
	qty, err := decimal.NewFromString(r.Qty)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("postgres: parse qty: %w", err)
	}
	sym, err := tick.NewSymbol(r.Symbol)
	if err != nil {
		return tick.Tick{}, err
	}
	return tick.Tick{
		Symbol:  sym,
		TradeID: uint64(r.TradeID),
		TS:      r.TS.UTC(),
		Price:   price,
		Qty:     qty,
		Side:    tick.Side(r.Side),
	}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == pqUniqueViolation {
			return store.ErrDuplicate
		}
		return fmt.Errorf("%w: %v", store.ErrSchema, pqErr)
	}
	// Anything else (connection reset, timeout, pool exhaustion) is
	// treated as transient for retry purposes, per spec §7.
	return fmt.Errorf("%w: %v", store.ErrTransient, err)
}

// InsertOne persists a single tick, reporting DuplicateIgnored instead of
// an error when (symbol, trade_id) already exists.
func (s *Store) InsertOne(ctx context.Context, t tick.Tick) (store.InsertResult, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	row := toRow(t)
	result := store.Inserted
	err := store.Retry(ctx, s.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO ticks (symbol, trade_id, ts, price, qty, side)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (symbol, trade_id) DO NOTHING`,
			row.Symbol, row.TradeID, row.TS, row.Price, row.Qty, row.Side)
		if err != nil {
			return classify(err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			result = store.DuplicateIgnored
		} else {
			result = store.Inserted
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// InsertBatch persists many ticks atomically: either all non-duplicate
// rows commit, or none do.
func (s *Store) InsertBatch(ctx context.Context, ticks []tick.Tick) (store.BatchResult, error) {
	if len(ticks) == 0 {
		return store.BatchResult{}, nil
	}
	for _, t := range ticks {
		if err := t.Validate(); err != nil {
			return store.BatchResult{}, err
		}
	}

	var result store.BatchResult
	err := store.Retry(ctx, s.retry, func(ctx context.Context) error {
		result = store.BatchResult{}
		ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(ticks)/100+1))
		defer cancel()

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin tx: %v", store.ErrTransient, err)
		}
		defer tx.Rollback()

		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO ticks (symbol, trade_id, ts, price, qty, side)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (symbol, trade_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("%w: prepare: %v", store.ErrTransient, err)
		}
		defer stmt.Close()

		for _, t := range ticks {
			row := toRow(t)
			res, err := stmt.ExecContext(ctx, row.Symbol, row.TradeID, row.TS, row.Price, row.Qty, row.Side)
			if err != nil {
				return classify(err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				result.Duplicates++
			} else {
				result.Inserted++
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit: %v", store.ErrTransient, err)
		}
		return nil
	})
	if err != nil {
		return store.BatchResult{}, err
	}
	return result, nil
}

// QueryRange returns ticks in [tLo, tHi] ordered by ts, trade_id ascending.
func (s *Store) QueryRange(ctx context.Context, symbol tick.Symbol, tLo, tHi time.Time, limit int) ([]tick.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT symbol, trade_id, ts, price, qty, side
		FROM ticks
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC, trade_id ASC`
	args := []interface{}{string(symbol), tLo, tHi}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	var rows []tickRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: query range: %v", store.ErrTransient, err)
	}
	return fromRows(rows)
}

// QueryLatest returns the most recent n ticks, in chronological order.
func (s *Store) QueryLatest(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []tickRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT symbol, trade_id, ts, price, qty, side
		FROM ticks
		WHERE symbol = $1
		ORDER BY ts DESC, trade_id DESC
		LIMIT $2`, string(symbol), n)
	if err != nil {
		return nil, fmt.Errorf("%w: query latest: %v", store.ErrTransient, err)
	}
	// Reverse to chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return fromRows(rows)
}

// Stats returns row counts and per-symbol aggregates.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM ticks`); err != nil {
		return store.Stats{}, fmt.Errorf("%w: count: %v", store.ErrTransient, err)
	}

	type symRow struct {
		Symbol     string    `db:"symbol"`
		Count      int64     `db:"count"`
		EarliestTS time.Time `db:"earliest_ts"`
		LatestTS   time.Time `db:"latest_ts"`
		MinPrice   string    `db:"min_price"`
		MaxPrice   string    `db:"max_price"`
	}
	var symRows []symRow
	err := s.db.SelectContext(ctx, &symRows, `
		SELECT symbol, COUNT(*) AS count,
		       MIN(ts) AS earliest_ts, MAX(ts) AS latest_ts,
		       MIN(price) AS min_price, MAX(price) AS max_price
		FROM ticks
		GROUP BY symbol`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("%w: per-symbol stats: %v", store.ErrTransient, err)
	}

	perSymbol := make(map[tick.Symbol]store.SymbolStats, len(symRows))
	for _, r := range symRows {
		sym, err := tick.NewSymbol(r.Symbol)
		if err != nil {
			continue
		}
		minP, _ := decimal.NewFromString(r.MinPrice)
		maxP, _ := decimal.NewFromString(r.MaxPrice)
		perSymbol[sym] = store.SymbolStats{
			Count:      r.Count,
			EarliestTS: r.EarliestTS,
			LatestTS:   r.LatestTS,
			MinPrice:   minP,
			MaxPrice:   maxP,
		}
	}

	return store.Stats{TotalRows: total, PerSymbol: perSymbol}, nil
}

func fromRows(rows []tickRow) ([]tick.Tick, error) {
	out := make([]tick.Tick, 0, len(rows))
	for _, r := range rows {
		t, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
