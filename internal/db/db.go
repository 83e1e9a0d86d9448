// Package db persists parsed postings in a local SQLite database.
//
// The ledger hash is the primary key, so re-running the parser over the same
// statement files is idempotent: postings already stored are skipped, never
// duplicated or rewritten.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/types"
)

// DB represents a SQLite database connection
type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens (creating if necessary) the postings database under dataDir
func New(dataDir string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "postings.db")
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	d := &DB{db: sqlDB, logger: logger}
	if err := createTables(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return d, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS postings (
			ledger_hash TEXT PRIMARY KEY,
			card_last4 TEXT NOT NULL,
			post_date DATE NOT NULL,
			desc_raw TEXT NOT NULL,
			amount_brl TEXT NOT NULL,
			installment_seq INTEGER,
			installment_tot INTEGER,
			fx_rate TEXT,
			iof_brl TEXT,
			category TEXT NOT NULL,
			merchant_city TEXT,
			prev_bill_amount TEXT,
			interest_amount TEXT,
			amount_orig TEXT,
			currency_orig TEXT,
			amount_usd TEXT,
			source_file TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_postings_date ON postings(post_date);
		CREATE INDEX IF NOT EXISTS idx_postings_category ON postings(category);
		CREATE INDEX IF NOT EXISTS idx_postings_card ON postings(card_last4);
	`)
	if err != nil {
		return fmt.Errorf("failed to create postings table: %v", err)
	}
	return nil
}

// StoreAll inserts postings, skipping any whose ledger hash is already
// present. It returns how many rows were actually inserted.
func (d *DB) StoreAll(ctx context.Context, source string, txs []types.Transaction) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO postings (
			ledger_hash, card_last4, post_date, desc_raw, amount_brl,
			installment_seq, installment_tot, fx_rate, iof_brl, category,
			merchant_city, prev_bill_amount, interest_amount,
			amount_orig, currency_orig, amount_usd, source_file
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txs {
		res, err := stmt.ExecContext(ctx,
			t.LedgerHash, t.CardLast4, t.PostDate, t.Description, t.AmountBRL.StringFixed(2),
			nullInt(t.InstallmentSeq), nullInt(t.InstallmentTot),
			nullAmount(t.FXRate, 4), nullAmount(t.IOFBRL, 2), string(t.Category),
			nullString(t.MerchantCity), nullAmount(t.PrevBillAmount, 2), nullAmount(t.InterestAmount, 2),
			nullAmount(t.AmountOrig, 2), nullString(t.CurrencyOrig), nullAmount(t.AmountUSD, 2),
			source,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to store posting %s: %v", t.LedgerHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			d.logger.Warn("Failed to get rows affected", "error", err)
			continue
		}
		if n > 0 {
			inserted++
		} else {
			d.logger.Debug("Posting already stored", "hash", t.LedgerHash, "desc", t.Description)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %v", err)
	}
	return inserted, nil
}

// Count returns the number of stored postings
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count postings: %v", err)
	}
	return count, nil
}

// CategoryTotal aggregates one category's stored postings
type CategoryTotal struct {
	Category types.Category  `json:"category"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total_brl"`
}

// CategoryTotals sums stored postings per category, largest spend first.
// Amounts are summed as decimals in Go so cents never drift.
func (d *DB) CategoryTotals(ctx context.Context) ([]CategoryTotal, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT category, amount_brl FROM postings
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %v", err)
	}
	defer rows.Close()

	counts := make(map[types.Category]int)
	totals := make(map[types.Category]decimal.Decimal)
	for rows.Next() {
		var category string
		var amount string
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %v", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q for category %s: %v", amount, category, err)
		}
		c := types.Category(category)
		if _, ok := types.AllowedCategoriesMap[c]; !ok {
			return nil, fmt.Errorf("unknown category %q in ledger", category)
		}
		counts[c]++
		totals[c] = totals[c].Add(amt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate postings: %v", err)
	}

	out := make([]CategoryTotal, 0, len(totals))
	for c, total := range totals {
		out = append(out, CategoryTotal{Category: c, Count: counts[c], Total: total})
	}
	// Largest absolute spend first, category name as tiebreak
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Total.Abs().Cmp(out[j].Total.Abs())
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// MonthTotal aggregates one calendar month's stored postings
type MonthTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total_brl"`
}

// MonthTotals sums stored postings per posting month, oldest first
func (d *DB) MonthTotals(ctx context.Context) ([]MonthTotal, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT substr(post_date, 1, 7) AS month, amount_brl
		FROM postings ORDER BY month
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %v", err)
	}
	defer rows.Close()

	var out []MonthTotal
	for rows.Next() {
		var month, amount string
		if err := rows.Scan(&month, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %v", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q for month %s: %v", amount, month, err)
		}
		if len(out) == 0 || out[len(out)-1].Month != month {
			out = append(out, MonthTotal{Month: month})
		}
		out[len(out)-1].Count++
		out[len(out)-1].Total = out[len(out)-1].Total.Add(amt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate postings: %v", err)
	}
	return out, nil
}

// Negatives counts stored postings with a negative amount (payments,
// refunds, adjustments)
func (d *DB) Negatives(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM postings WHERE amount_brl LIKE '-%'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count negative postings: %v", err)
	}
	return count, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullAmount(d decimal.Decimal, places int32) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.StringFixed(places), Valid: true}
}
