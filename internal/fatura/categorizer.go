package fatura

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/types"
)

// Categorizer maps a description and amount to one category label. The rules
// are strictly ordered and the first match wins: a description containing
// both an IOF keyword and a merchant keyword resolves to ENCARGOS.
type Categorizer struct {
	cfg Config
}

// NewCategorizer builds a categorizer for the given configuration
func NewCategorizer(cfg Config) *Categorizer {
	return &Categorizer{cfg: cfg}
}

// Categorize assigns a category to an upper-cased description and its amount
func (c *Categorizer) Categorize(desc string, amount decimal.Decimal) types.Category {
	d := strings.ToUpper(desc)

	if strings.Contains(d, c.cfg.PaymentMarker) {
		return types.CategoryPagamento
	}

	abs := amount.Abs()
	if strings.Contains(d, "AJUSTE") ||
		(abs.GreaterThan(decimal.Zero) && abs.LessThanOrEqual(c.cfg.AdjustmentThreshold)) {
		return types.CategoryAjuste
	}

	for _, kw := range c.cfg.ChargeKeywords {
		if strings.Contains(d, kw) {
			return types.CategoryEncargos
		}
	}

	for _, rule := range c.cfg.CategoryRules {
		if strings.Contains(d, rule.Keyword) {
			return rule.Category
		}
	}

	for _, kw := range c.cfg.FXKeywords {
		if strings.Contains(d, kw) {
			return types.CategoryFX
		}
	}

	return types.CategoryDiversos
}
