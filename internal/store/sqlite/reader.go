package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"ta-core/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Reader provides read-only access to SQLite for backfill.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created
// if missing so a fresh database reads as empty rather than failing.
func NewReader(dbPath string, log *zap.Logger) (*Reader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite reader opened", zap.String("path", dbPath))
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars reads bars for one instrument and TF with ts > afterTS, ordered
// by timestamp ascending for correct replay order.
func (r *Reader) ReadBars(ctx context.Context, exchange, symbol string, tf int, afterTS int64) ([]model.TFBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT exchange, symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE exchange = ? AND symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, symbol, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	return scanBars(rows)
}

// ReadAllBars reads all bars of a timeframe with ts > afterTS, ordered by
// timestamp. Bars sharing a timestamp come out in instrument order.
func (r *Reader) ReadAllBars(ctx context.Context, tf int, afterTS int64) ([]model.TFBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT exchange, symbol, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, exchange ASC, symbol ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.TFBar, error) {
	defer rows.Close()

	var bars []model.TFBar
	for rows.Next() {
		var b model.TFBar
		if err := rows.Scan(&b.Exchange, &b.Symbol, &b.TF, &b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

var (
	_ model.BarWriter = (*Writer)(nil)
	_ model.BarReader = (*Reader)(nil)
)
