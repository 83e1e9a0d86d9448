// Package fatura parses cleaned Itaú credit-card statement lines into
// normalized transactions.
//
// The pipeline is a strictly sequential fold: normalized lines are
// classified one at a time, multi-line FX clusters are resolved with a
// bounded lookahead window, and postings are deduplicated by a deterministic
// ledger hash. Parsing one statement shares no state with any other, so
// statements can be parsed in parallel with no synchronization.
package fatura

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/lox/itau-fatura-parser/internal/dates"
	"github.com/lox/itau-fatura-parser/internal/normalize"
	"github.com/lox/itau-fatura-parser/internal/types"
)

// StatementLine is one canonical line and its 0-based position in the
// statement's line sequence
type StatementLine struct {
	Text string
	Pos  int
}

// Result holds one statement's parsed transactions, in emission order, plus
// the summary counters
type Result struct {
	Transactions []types.Transaction
	Stats        types.Stats
}

// Parser assembles transactions from statement lines. It is safe for
// concurrent use: all mutable state lives in per-call parse state.
type Parser struct {
	cfg         Config
	logger      *log.Logger
	classifier  *Classifier
	categorizer *Categorizer
}

// New creates a parser with an explicit configuration and logger
func New(cfg Config, logger *log.Logger) *Parser {
	return &Parser{
		cfg:         cfg,
		logger:      logger,
		classifier:  NewClassifier(cfg),
		categorizer: NewCategorizer(cfg),
	}
}

// Config returns the parser's configuration
func (p *Parser) Config() Config {
	return p.cfg
}

// Parse folds one statement's raw lines into transactions. Lines are
// normalized once up front; empty input yields an empty result, not an
// error. Hard parse failures (unparseable amounts or dates inside confirmed
// matches) abort the parse with an error attributing the offending line.
func (p *Parser) Parse(ctx context.Context, raw []string, ref dates.RefPeriod) (Result, error) {
	lines := make([]StatementLine, len(raw))
	for i, r := range raw {
		lines[i] = StatementLine{Text: normalize.Line(r), Pos: i}
	}

	a := &assembler{
		p:     p,
		ref:   ref,
		state: newParseState(),
	}
	if err := a.run(ctx, lines); err != nil {
		return Result{}, err
	}

	return Result{Transactions: a.out, Stats: a.stats}, nil
}
