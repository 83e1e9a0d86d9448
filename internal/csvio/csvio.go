// Package csvio writes parsed transactions as delimiter-separated text.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/money"
	"github.com/lox/itau-fatura-parser/internal/types"
)

// Options controls the output dialect. The column set and order are fixed;
// only the delimiter and number formatting vary.
type Options struct {
	// Delimiter separates fields. Defaults to ';', the separator Brazilian
	// spreadsheet locales expect.
	Delimiter rune

	// DotDecimals formats amounts with a dot decimal separator ("1234.56")
	// instead of the Brazilian convention ("1.234,56")
	DotDecimals bool
}

// Writer emits transactions in the fixed 16-column layout
type Writer struct {
	w    *csv.Writer
	opts Options
}

// NewWriter wraps w. The header row is always written, so a statement that
// yields no transactions still produces a well-formed file.
func NewWriter(w io.Writer, opts Options) *Writer {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}
	cw := csv.NewWriter(w)
	cw.Comma = opts.Delimiter
	return &Writer{w: cw, opts: opts}
}

// WriteAll writes the header row and every transaction, then flushes
func (w *Writer) WriteAll(txs []types.Transaction) error {
	if err := w.w.Write(types.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, tx := range txs {
		if err := w.w.Write(w.record(tx)); err != nil {
			return fmt.Errorf("writing transaction %s: %w", tx.LedgerHash, err)
		}
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) record(tx types.Transaction) []string {
	// Installment columns render both-or-none
	seq, tot := "", ""
	if tx.HasInstallments() {
		seq = strconv.Itoa(tx.InstallmentSeq)
		tot = strconv.Itoa(tx.InstallmentTot)
	}
	return []string{
		tx.CardLast4,
		tx.PostDate,
		tx.Description,
		w.amount(tx.AmountBRL, 2, true),
		seq,
		tot,
		w.amount(tx.FXRate, 4, false),
		w.amount(tx.IOFBRL, 2, false),
		string(tx.Category),
		tx.MerchantCity,
		tx.LedgerHash,
		w.amount(tx.PrevBillAmount, 2, false),
		w.amount(tx.InterestAmount, 2, false),
		w.amount(tx.AmountOrig, 2, false),
		tx.CurrencyOrig,
		w.amount(tx.AmountUSD, 2, false),
	}
}

// amount formats a monetary field. Optional fields render a zero value as
// empty; amount_brl always renders.
func (w *Writer) amount(d decimal.Decimal, places int32, required bool) string {
	if !required && d.IsZero() {
		return ""
	}
	if w.opts.DotDecimals {
		return d.StringFixed(places)
	}
	return money.FormatPlaces(d, places)
}
