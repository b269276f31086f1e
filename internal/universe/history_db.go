// Package universe stores monthly price history and derives the percentage
// return series the estimators consume.
package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tailrisk/internal/database"
	"github.com/aristath/tailrisk/pkg/series"
)

// ErrNotFound signals that no price history is stored for a symbol.
var ErrNotFound = errors.New("symbol not found")

const schema = `
CREATE TABLE IF NOT EXISTS monthly_prices (
	symbol        TEXT NOT NULL,
	year_month    TEXT NOT NULL,
	avg_adj_close REAL NOT NULL,
	PRIMARY KEY (symbol, year_month)
);
`

// monthLayout is the stored year_month format.
const monthLayout = "2006-01"

// MonthlyClose is one month of adjusted close history.
type MonthlyClose struct {
	Month time.Time `json:"month"`
	Close float64   `json:"close"`
}

// HistoryDB provides access to monthly price history
type HistoryDB struct {
	db  *database.DB
	log zerolog.Logger
}

// NewHistoryDB creates the accessor and ensures its schema exists
func NewHistoryDB(db *database.DB, log zerolog.Logger) (*HistoryDB, error) {
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}, nil
}

// UpsertMonthlyCloses stores or replaces price history for a symbol. Writes
// run in one transaction so a failed load never leaves a partial history.
func (h *HistoryDB) UpsertMonthlyCloses(ctx context.Context, symbol string, closes []MonthlyClose) error {
	if symbol == "" || len(closes) == 0 {
		return fmt.Errorf("empty symbol or history: %w", series.ErrInvalidInput)
	}

	err := database.WithTransaction(h.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO monthly_prices (symbol, year_month, avg_adj_close)
			VALUES (?, ?, ?)
			ON CONFLICT(symbol, year_month) DO UPDATE SET
				avg_adj_close = excluded.avg_adj_close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range closes {
			if _, err := stmt.ExecContext(ctx, symbol, c.Month.Format(monthLayout), c.Close); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", symbol, c.Month.Format(monthLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Debug().Str("symbol", symbol).Int("months", len(closes)).Msg("Stored price history")
	return nil
}

// MonthlyCloses fetches the full price history for a symbol, oldest first.
func (h *HistoryDB) MonthlyCloses(ctx context.Context, symbol string) ([]MonthlyClose, error) {
	rows, err := h.db.Conn().QueryContext(ctx, `
		SELECT year_month, avg_adj_close
		FROM monthly_prices
		WHERE symbol = ?
		ORDER BY year_month ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var closes []MonthlyClose
	for rows.Next() {
		var month string
		var close float64
		if err := rows.Scan(&month, &close); err != nil {
			return nil, fmt.Errorf("failed to scan monthly price: %w", err)
		}

		ts, err := time.Parse(monthLayout, month)
		if err != nil {
			return nil, fmt.Errorf("malformed year_month %q for %s: %w", month, symbol, err)
		}
		closes = append(closes, MonthlyClose{Month: ts, Close: close})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly prices for %s: %w", symbol, err)
	}

	if len(closes) == 0 {
		return nil, fmt.Errorf("no history stored for %s: %w", symbol, ErrNotFound)
	}
	return closes, nil
}

// Returns loads a symbol's history and converts it to percentage returns.
func (h *HistoryDB) Returns(ctx context.Context, symbol string) (*series.Series, error) {
	closes, err := h.MonthlyCloses(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return ReturnsFromCloses(closes)
}

// AlignedReturns loads two symbols and inner-joins their return series on
// shared months. The estimators assume this alignment has happened.
func (h *HistoryDB) AlignedReturns(ctx context.Context, symbolA, symbolB string) (*series.Series, *series.Series, error) {
	a, err := h.Returns(ctx, symbolA)
	if err != nil {
		return nil, nil, err
	}
	b, err := h.Returns(ctx, symbolB)
	if err != nil {
		return nil, nil, err
	}
	return series.Align(a, b)
}

// Symbols lists every symbol with stored history.
func (h *HistoryDB) Symbols(ctx context.Context) ([]string, error) {
	rows, err := h.db.Conn().QueryContext(ctx, `SELECT DISTINCT symbol FROM monthly_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// Delete removes a symbol's stored history.
func (h *HistoryDB) Delete(ctx context.Context, symbol string) error {
	result, err := h.db.Conn().ExecContext(ctx, `DELETE FROM monthly_prices WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", symbol, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no history stored for %s: %w", symbol, ErrNotFound)
	}
	return nil
}

// ReturnsFromCloses converts price levels to consecutive-month percentage
// returns. Non-positive closes are skipped the way NA rows are dropped at
// construction; each return is stamped with the month it was earned in.
func ReturnsFromCloses(closes []MonthlyClose) (*series.Series, error) {
	var clean []MonthlyClose
	for _, c := range closes {
		if c.Close > 0 {
			clean = append(clean, c)
		}
	}
	if len(clean) < 2 {
		return nil, fmt.Errorf("need at least 2 positive closes, have %d: %w",
			len(clean), series.ErrInsufficientData)
	}

	points := make([]series.Point, 0, len(clean)-1)
	for i := 1; i < len(clean); i++ {
		points = append(points, series.Point{
			Time:   clean[i].Month,
			Return: (clean[i].Close/clean[i-1].Close - 1.0) * 100.0,
		})
	}
	return series.New(points)
}
