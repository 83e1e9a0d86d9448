package fatura

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/types"
)

// LedgerHash computes the deterministic dedup digest over a transaction's
// canonical fields. It is the sole deduplication key and carries no security
// property.
func LedgerHash(card, postDate, desc string, amountBRL decimal.Decimal, installmentTot int, category types.Category) string {
	tot := ""
	if installmentTot > 0 {
		tot = strconv.Itoa(installmentTot)
	}
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s", card, postDate, desc, amountBRL.StringFixed(2), tot, category)
	return hex.EncodeToString(h.Sum(nil))
}
