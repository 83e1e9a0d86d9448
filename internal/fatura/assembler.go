package fatura

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/dates"
	"github.com/lox/itau-fatura-parser/internal/money"
	"github.com/lox/itau-fatura-parser/internal/types"
)

// fxKey is the dedup tuple for FX clusters: the same purchase is reachable
// through both the 3-line and 2-line window attempts
type fxKey struct {
	desc string
	date string
	brl  string
	orig string
	rate string
}

// parseState is the mutable per-statement state. It is created at the start
// of one statement and discarded at the end; nothing is shared across
// statements.
type parseState struct {
	card           string
	paymentOrdinal int
	prevBill       decimal.Decimal
	lastDate       string
	seenFX         map[fxKey]struct{}
	seenHashes     map[string]struct{}
}

func newParseState() *parseState {
	return &parseState{
		card:       "0000",
		seenFX:     make(map[fxKey]struct{}),
		seenHashes: make(map[string]struct{}),
	}
}

// fxResult is a confirmed FX cluster extracted from a 2- or 3-line window
type fxResult struct {
	date     string
	desc     string
	orig     decimal.Decimal
	brl      decimal.Decimal
	rate     decimal.Decimal
	iof      decimal.Decimal
	city     string
	currency string
	usd      decimal.Decimal
}

// assembler folds the classified line stream into transactions. Processing
// is strictly forward: a match consumes its window and the cursor never
// backtracks, except that a rejected FX window re-evaluates its main line as
// a domestic posting.
type assembler struct {
	p     *Parser
	ref   dates.RefPeriod
	state *parseState
	out   []types.Transaction
	stats types.Stats
}

func (a *assembler) run(ctx context.Context, lines []StatementLine) error {
	a.stats.Lines = len(lines)

	for i := 0; i < len(lines); {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := lines[i]
		if line.Text == "" {
			i++
			continue
		}
		// Card headers outrank the header-drop list: the card section
		// banner is itself a droppable header shape
		if card := a.p.classifier.cardLast4(line.Text); card != "" {
			a.state.card = card
			a.stats.CardHeaders++
			i++
			continue
		}
		if a.p.cfg.DropHeaderRe.MatchString(line.Text) {
			a.stats.HeaderDrops++
			i++
			continue
		}

		switch a.p.classifier.Classify(line.Text) {
		case ClassFXStart:
			consumed, err := a.resolveFX(lines, i)
			if err != nil {
				return err
			}
			i += consumed

		case ClassPayment:
			if err := a.payment(line); err != nil {
				return err
			}
			i++

		case ClassDomestic:
			if err := a.domestic(line); err != nil {
				return err
			}
			i++

		case ClassIOF:
			if err := a.iofPosting(line); err != nil {
				return err
			}
			i++

		case ClassCharge:
			if err := a.chargePosting(line); err != nil {
				return err
			}
			i++

		default:
			a.stats.Unmatched++
			a.p.logger.Debug("unmatched line", "pos", line.Pos, "text", line.Text)
			i++
		}
	}

	return nil
}

// resolveFX attempts the lookahead window (up to two trailing lines) and
// falls back to re-evaluating the main line as a domestic posting. An FX
// cluster is only valid when a conversion-rate line appears in the window;
// trailing lines that contribute nothing to the cluster are not consumed,
// so an adjacent posting never disappears into a neighbor's window.
func (a *assembler) resolveFX(lines []StatementLine, i int) (int, error) {
	var rest []string
	for j := i + 1; j < len(lines) && j <= i+2; j++ {
		rest = append(rest, lines[j].Text)
	}

	fx, lastUsed, err := a.tryParseFX(lines[i], rest)
	if err != nil {
		return 0, err
	}
	if fx != nil {
		if err := a.emitFX(fx, lines[i]); err != nil {
			return 0, err
		}
		return lastUsed + 2, nil
	}

	// No rate line in reach: this is not an FX cluster after all
	if err := a.domestic(lines[i]); err != nil {
		return 0, err
	}
	return 1, nil
}

// tryParseFX confirms or rejects an FX window. It returns nil (and no error)
// when the window does not form a valid cluster; amount parse failures inside
// a confirmed match are hard errors. lastUsed is the index within rest of
// the last line that contributed to the cluster.
func (a *assembler) tryParseFX(main StatementLine, rest []string) (*fxResult, int, error) {
	m := reFXMain.FindStringSubmatch(main.Text)
	if m == nil {
		return nil, -1, nil
	}

	fx := &fxResult{date: m[1], desc: strings.TrimSpace(m[2])}

	rateSeen := false
	lastUsed := -1
	for idx, ln := range rest {
		if ln == "" {
			continue
		}
		if rm := a.p.cfg.RateLineRe.FindStringSubmatch(ln); rm != nil {
			rate, err := money.ParseRate(rm[1])
			if err != nil {
				return nil, -1, a.hardErr(err, main.Pos, ln)
			}
			fx.rate = rate
			rateSeen = true
			lastUsed = idx
			continue
		}
		if reIOFLine.MatchString(ln) {
			if bm := reBRL.FindString(ln); bm != "" {
				iof, err := money.Parse(bm)
				if err != nil {
					return nil, -1, a.hardErr(err, main.Pos, ln)
				}
				fx.iof = iof
				lastUsed = idx
			}
			continue
		}
		if dm := reFXDetail.FindStringSubmatch(ln); dm != nil {
			fx.city = strings.ToUpper(strings.TrimSpace(dm[1]))
			fx.currency = dm[3]
			if usd, err := money.Parse(dm[4]); err == nil {
				fx.usd = usd
			}
			lastUsed = idx
		}
	}
	if !rateSeen {
		return nil, -1, nil
	}

	orig, err := money.Parse(m[3])
	if err != nil {
		return nil, -1, a.hardErr(err, main.Pos, main.Text)
	}
	brl, err := money.Parse(m[4])
	if err != nil {
		return nil, -1, a.hardErr(err, main.Pos, main.Text)
	}
	fx.orig, fx.brl = orig, brl

	return fx, lastUsed, nil
}

func (a *assembler) emitFX(fx *fxResult, line StatementLine) error {
	key := fxKey{
		desc: fx.desc,
		date: fx.date,
		brl:  fx.brl.StringFixed(2),
		orig: fx.orig.StringFixed(2),
		rate: fx.rate.String(),
	}
	if _, seen := a.state.seenFX[key]; seen {
		a.stats.Duplicates++
		a.p.logger.Debug("duplicate FX cluster dropped", "desc", fx.desc, "date", fx.date, "amount_brl", fx.brl)
		return nil
	}
	a.state.seenFX[key] = struct{}{}

	postDate, err := dates.Parse(fx.date, a.ref)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}

	// City resolution: detail line, then the configured table, then the
	// first description token
	city := fx.city
	if city == "" {
		city = a.merchantCity(fx.desc)
	}
	if city == "" {
		if fields := strings.Fields(fx.desc); len(fields) > 0 {
			city = strings.ToUpper(fields[0])
		}
	}

	tx := types.Transaction{
		CardLast4:    a.state.card,
		PostDate:     postDate,
		Description:  fx.desc,
		AmountBRL:    fx.brl,
		FXRate:       fx.rate,
		IOFBRL:       fx.iof,
		Category:     types.CategoryFX,
		MerchantCity: city,
		AmountOrig:   fx.orig,
		CurrencyOrig: fx.currency,
		AmountUSD:    fx.usd,
		Line:         line.Pos,
	}
	if a.emit(tx) {
		a.stats.FX++
		a.state.lastDate = postDate
	}
	return nil
}

// payment handles a payment line: the first payment of a statement settles
// the previous billing cycle and is suppressed, as is any payment naming a
// previous-cycle keyword. Non-negative payment amounts are data-quality
// anomalies and are rejected. The ordinal advances on every payment line,
// suppressed or not.
func (a *assembler) payment(line StatementLine) error {
	var dateStr, amtStr string
	if m := a.p.classifier.rePayment.FindStringSubmatch(line.Text); m != nil {
		dateStr, amtStr = m[1], m[3]
	} else if m := rePaymentAny.FindStringSubmatch(line.Text); m != nil {
		dateStr, amtStr = m[1], m[2]
	} else {
		a.stats.Unmatched++
		return nil
	}

	if a.isPrevBillPayoff(line.Text) {
		a.state.paymentOrdinal++
		a.stats.Suppressed++
		if amt, err := money.Parse(amtStr); err == nil {
			a.state.prevBill = amt
		} else {
			a.p.logger.Warn("suppressed payment amount unparseable", "pos", line.Pos, "text", line.Text)
		}
		a.p.logger.Debug("previous-bill payoff suppressed", "pos", line.Pos, "text", line.Text)
		return nil
	}
	a.state.paymentOrdinal++

	amt, err := money.Parse(amtStr)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}
	if amt.GreaterThanOrEqual(decimal.Zero) {
		a.p.logger.Warn("non-negative payment rejected", "pos", line.Pos, "amount", amt, "text", line.Text)
		a.stats.Rejected++
		return nil
	}

	postDate, err := dates.Parse(dateStr, a.ref)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}

	tx := types.Transaction{
		CardLast4:      a.state.card,
		PostDate:       postDate,
		Description:    "PAGAMENTO",
		AmountBRL:      amt,
		Category:       types.CategoryPagamento,
		PrevBillAmount: a.state.prevBill,
		Line:           line.Pos,
	}
	if a.emit(tx) {
		a.stats.Payments++
		a.state.lastDate = postDate
		a.state.prevBill = decimal.Zero
	}
	return nil
}

func (a *assembler) isPrevBillPayoff(line string) bool {
	if a.state.paymentOrdinal == 0 {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range a.p.cfg.PrevBillKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// domestic handles a single-line posting: DATE DESCRIPTION AMOUNT
func (a *assembler) domestic(line StatementLine) error {
	m := reDomestic.FindStringSubmatch(line.Text)
	if m == nil {
		a.stats.Unmatched++
		return nil
	}
	desc := strings.TrimSpace(m[2])
	if desc == "" {
		a.reject("empty description", line.Pos, line.Text)
		return nil
	}

	amt, err := money.Parse(m[3])
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}
	if abs := amt.Abs(); abs.GreaterThan(a.p.cfg.SuspiciousMax) || abs.LessThan(a.p.cfg.SuspiciousMin) {
		a.p.logger.Warn("suspicious amount", "pos", line.Pos, "desc", desc, "amount", amt)
	}

	seq, tot, ok := extractInstallments(desc)
	if ok && tot > 0 && seq > tot {
		// Out-of-cycle installment indicates a parse misalignment; the whole
		// line is rejected, not just the installment fields
		a.reject("installment out of cycle", line.Pos, line.Text)
		return nil
	}

	postDate, err := dates.Parse(m[1], a.ref)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}

	tx := types.Transaction{
		CardLast4:    a.state.card,
		PostDate:     postDate,
		Description:  desc,
		AmountBRL:    amt,
		Category:     a.p.categorizer.Categorize(desc, amt),
		MerchantCity: a.merchantCity(desc),
		Line:         line.Pos,
	}
	if ok {
		tx.InstallmentSeq = seq
		tx.InstallmentTot = tot
	}
	if a.emit(tx) {
		a.stats.Domestic++
		a.state.lastDate = postDate
	}
	return nil
}

// iofPosting handles a standalone IOF repasse line. IOF lines carry no date
// of their own and borrow the most recent posting date.
func (a *assembler) iofPosting(line StatementLine) error {
	bm := reBRL.FindString(line.Text)
	if bm == "" {
		a.stats.Unmatched++
		return nil
	}
	amt, err := money.Parse(bm)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}
	if a.state.lastDate == "" {
		a.reject("iof posting with no prior date", line.Pos, line.Text)
		return nil
	}

	tx := types.Transaction{
		CardLast4:   a.state.card,
		PostDate:    a.state.lastDate,
		Description: "Repasse de IOF em R$",
		AmountBRL:   amt,
		IOFBRL:      amt,
		Category:    types.CategoryIOF,
		Line:        line.Pos,
	}
	if a.emit(tx) {
		a.stats.IOF++
	}
	return nil
}

// chargePosting handles interest and penalty lines, dated like IOF postings
func (a *assembler) chargePosting(line StatementLine) error {
	bm := reBRL.FindString(line.Text)
	if bm == "" {
		a.stats.Unmatched++
		return nil
	}
	amt, err := money.Parse(bm)
	if err != nil {
		return a.hardErr(err, line.Pos, line.Text)
	}
	if amt.IsZero() {
		return nil
	}
	if a.state.lastDate == "" {
		a.reject("charge posting with no prior date", line.Pos, line.Text)
		return nil
	}

	tx := types.Transaction{
		CardLast4:      a.state.card,
		PostDate:       a.state.lastDate,
		Description:    line.Text,
		AmountBRL:      amt,
		InterestAmount: amt,
		Category:       types.CategoryEncargos,
		Line:           line.Pos,
	}
	if a.emit(tx) {
		a.stats.Encargos++
	}
	return nil
}

// emit appends a transaction unless its ledger hash was already seen.
// Duplicates are dropped from the output but counted.
func (a *assembler) emit(tx types.Transaction) bool {
	tx.LedgerHash = LedgerHash(tx.CardLast4, tx.PostDate, tx.Description, tx.AmountBRL, tx.InstallmentTot, tx.Category)
	if _, seen := a.state.seenHashes[tx.LedgerHash]; seen {
		a.stats.Duplicates++
		a.p.logger.Debug("duplicate posting dropped", "desc", tx.Description, "date", tx.PostDate, "amount", tx.AmountBRL)
		return false
	}
	a.state.seenHashes[tx.LedgerHash] = struct{}{}
	a.out = append(a.out, tx)
	return true
}

func (a *assembler) reject(reason string, pos int, text string) {
	a.stats.Rejected++
	a.p.logger.Warn("posting rejected", "reason", reason, "pos", pos, "text", text)
}

// hardErr attributes a parse failure to its statement line before returning
// it to the caller
func (a *assembler) hardErr(err error, pos int, text string) error {
	var merr *money.ParseError
	if errors.As(err, &merr) {
		merr.Position = pos
	}
	var derr *dates.ParseError
	if errors.As(err, &derr) {
		derr.Position = pos
	}
	return fmt.Errorf("line %d %q: %w", pos, text, err)
}

// merchantCity consults the ordered merchant-to-city table; the first
// matching merchant wins
func (a *assembler) merchantCity(desc string) string {
	upper := strings.ToUpper(desc)
	for _, rule := range a.p.cfg.MerchantCities {
		if strings.Contains(upper, rule.Merchant) {
			return strings.ToUpper(rule.City)
		}
	}
	return ""
}

// extractInstallments applies the ordered installment sub-patterns to a
// description: explicit "seq/tot" digits, then "Nx R$" recurring-charge
// notation (sequence 1 of N), then "N de M" text. First match wins.
func extractInstallments(desc string) (seq, tot int, ok bool) {
	if m := reInstSlash.FindStringSubmatch(desc); m != nil {
		seq, _ = strconv.Atoi(m[1])
		tot, _ = strconv.Atoi(m[2])
		return seq, tot, true
	}
	if m := reInstTimes.FindStringSubmatch(desc); m != nil {
		tot, _ = strconv.Atoi(m[1])
		return 1, tot, true
	}
	if m := reInstDe.FindStringSubmatch(desc); m != nil {
		seq, _ = strconv.Atoi(m[1])
		tot, _ = strconv.Atoi(m[2])
		return seq, tot, true
	}
	return 0, 0, false
}
