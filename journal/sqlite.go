// journal/sqlite.go
package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var _ Journal = (*SQLiteJournal)(nil)

// SQLiteJournal is the file-backed journal implementation. database/sql
// serializes access, so it is safe for both workers to record concurrently.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal database at path and applies
// the schema.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeEntry) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, instrument, units, price, stop_loss, take_profit, direction, sentiment, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Instrument, t.Units, t.Price,
		t.StopLoss, t.TakeProfit, t.Direction, t.Sentiment, t.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, balance, daily_pnl)
		VALUES (?, ?, ?)`,
		e.Time, e.Balance, e.DailyPnL,
	)
	return err
}

// RecentTrades returns up to limit trades, most recent first.
func (j *SQLiteJournal) RecentTrades(limit int) ([]TradeEntry, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, instrument, units, price, stop_loss, take_profit, direction, sentiment, time
		FROM trades ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeEntry
	for rows.Next() {
		var t TradeEntry
		if err := rows.Scan(&t.TradeID, &t.Instrument, &t.Units, &t.Price,
			&t.StopLoss, &t.TakeProfit, &t.Direction, &t.Sentiment, &t.Time); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
