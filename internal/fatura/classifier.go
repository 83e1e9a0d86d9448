package fatura

import (
	"regexp"
	"strings"
)

// LineClass is the single-line classification assigned before assembly
type LineClass int

const (
	ClassUnmatched LineClass = iota
	ClassCardHeader
	ClassFXStart
	ClassPayment
	ClassDomestic
	ClassIOF
	ClassCharge
)

func (c LineClass) String() string {
	switch c {
	case ClassCardHeader:
		return "card-header"
	case ClassFXStart:
		return "fx-start"
	case ClassPayment:
		return "payment"
	case ClassDomestic:
		return "domestic"
	case ClassIOF:
		return "iof"
	case ClassCharge:
		return "charge"
	default:
		return "unmatched"
	}
}

var (
	reDateLead = regexp.MustCompile(`^\d{1,2}/\d{1,2}`)
	reBRL      = regexp.MustCompile(`-?\s*\d{1,3}(?:\.\d{3})*,\d{2}`)

	// FX cluster start: date, description, original amount, BRL amount.
	// No currency code on this line; the code, rate and IOF follow on the
	// next one or two lines.
	reFXMain = regexp.MustCompile(`^(\d{1,2}/\d{1,2})\s+(.+?)\s+(-?\d{1,3}(?:\.\d{3})*,\d{2})\s+(-?\d{1,3}(?:\.\d{3})*,\d{2})$`)

	// FX tolerance line: merchant city, original amount, currency code and
	// USD equivalent, e.g. "ROMA 10,00 EUR 11,23"
	reFXDetail = regexp.MustCompile(`^(.+?)\s+([\d.,]+)\s+([A-Z]{3})\s+([\d.,]+)$`)

	reDomestic = regexp.MustCompile(`^(\d{1,2}/\d{1,2})\s+(.+?)\s+(-?\d{1,3}(?:\.\d{3})*,\d{2})$`)

	rePaymentAny = regexp.MustCompile(`(?i)^(\d{1,2}/\d{1,2}(?:/\d{4})?)\s+PAGAMENTO.*?(-?\s*[\d.,]+)\s*$`)

	reIOFLine = regexp.MustCompile(`(?i)Repasse de IOF`)

	// Installment sub-patterns, in priority order
	reInstSlash = regexp.MustCompile(`(\d{1,2})\s*/\s*(\d{1,2})`)
	reInstTimes = regexp.MustCompile(`(?i)(\d{1,2})\s*x\s*R\$`)
	reInstDe    = regexp.MustCompile(`(?i)(\d{1,2})\s*de\s*(\d{1,2})`)
)

// Classifier assigns one class per canonical line. Classification is
// priority ordered and first match wins; the order is part of the contract.
type Classifier struct {
	cfg       Config
	rePayment *regexp.Regexp
}

// NewClassifier builds a classifier for the given configuration
func NewClassifier(cfg Config) *Classifier {
	// Strict payment form carries the configured merchant marker
	rePayment := regexp.MustCompile(`(?i)^(\d{1,2}/\d{1,2}(?:/\d{4})?)\s+PAGAMENTO(\s+EFETUADO)?\s+` +
		regexp.QuoteMeta(cfg.PaymentMarker) + `\s*[-\t ]+(-\s*[\d.,]+)\s*$`)
	return &Classifier{cfg: cfg, rePayment: rePayment}
}

// Classify assigns a class to a single canonical line. FX starts are
// tentative: the assembler confirms them against the lookahead window and
// falls back to domestic when no rate line follows.
func (c *Classifier) Classify(line string) LineClass {
	if line == "" {
		return ClassUnmatched
	}
	if c.cardLast4(line) != "" {
		return ClassCardHeader
	}
	if reFXMain.MatchString(line) {
		return ClassFXStart
	}
	if c.rePayment.MatchString(line) || rePaymentAny.MatchString(line) {
		return ClassPayment
	}
	if reDomestic.MatchString(line) {
		return ClassDomestic
	}
	if reIOFLine.MatchString(line) && reBRL.MatchString(line) {
		return ClassIOF
	}
	if c.isCharge(line) && reBRL.MatchString(line) {
		return ClassCharge
	}
	return ClassUnmatched
}

// cardLast4 extracts the 4-digit card marker from a header line, or ""
func (c *Classifier) cardLast4(line string) string {
	// Posting lines can embed "final NNNN"-like fragments after a date; a
	// header never starts with one.
	if reDateLead.MatchString(line) {
		return ""
	}
	for _, re := range c.cfg.CardHeaderRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[len(m)-1]
		}
	}
	return ""
}

// isCharge reports whether a line carries interest or penalty keywords
func (c *Classifier) isCharge(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range c.cfg.InterestLineKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
