package types

import "github.com/shopspring/decimal"

// Category is one label from the closed categorization vocabulary
type Category string

const (
	CategoryPagamento    Category = "PAGAMENTO"
	CategoryAjuste       Category = "AJUSTE"
	CategoryEncargos     Category = "ENCARGOS"
	CategoryIOF          Category = "IOF"
	CategoryFX           Category = "FX"
	CategorySupermercado Category = "SUPERMERCADO"
	CategoryFarmacia     Category = "FARMÁCIA"
	CategoryRestaurante  Category = "RESTAURANTE"
	CategoryAlimentacao  Category = "ALIMENTAÇÃO"
	CategoryPosto        Category = "POSTO"
	CategoryTransporte   Category = "TRANSPORTE"
	CategoryTurismo      Category = "TURISMO"
	CategorySaude        Category = "SAÚDE"
	CategoryVeiculos     Category = "VEÍCULOS"
	CategoryVestuario    Category = "VESTUÁRIO"
	CategoryEducacao     Category = "EDUCAÇÃO"
	CategoryServicos     Category = "SERVIÇOS"
	CategoryHobby        Category = "HOBBY"
	CategoryDiversos     Category = "DIVERSOS"
)

// AllowedCategories lists every category the categorizer may emit
var AllowedCategories = []Category{
	CategoryPagamento,
	CategoryAjuste,
	CategoryEncargos,
	CategoryIOF,
	CategoryFX,
	CategorySupermercado,
	CategoryFarmacia,
	CategoryRestaurante,
	CategoryAlimentacao,
	CategoryPosto,
	CategoryTransporte,
	CategoryTurismo,
	CategorySaude,
	CategoryVeiculos,
	CategoryVestuario,
	CategoryEducacao,
	CategoryServicos,
	CategoryHobby,
	CategoryDiversos,
}

// AllowedCategoriesMap provides O(1) membership checks against the vocabulary
var AllowedCategoriesMap = func() map[Category]struct{} {
	m := make(map[Category]struct{}, len(AllowedCategories))
	for _, c := range AllowedCategories {
		m[c] = struct{}{}
	}
	return m
}()

// Transaction is a single normalized statement posting. Transactions are
// independent value objects once emitted; the only link back to the source
// statement is Line, the 0-based index of the line that produced it, kept
// for diagnostics.
type Transaction struct {
	CardLast4      string          `json:"card_last4"`
	PostDate       string          `json:"post_date"` // ISO YYYY-MM-DD
	Description    string          `json:"desc_raw"`
	AmountBRL      decimal.Decimal `json:"amount_brl"`
	InstallmentSeq int             `json:"installment_seq,omitempty"`
	InstallmentTot int             `json:"installment_tot,omitempty"`
	FXRate         decimal.Decimal `json:"fx_rate,omitempty"`
	IOFBRL         decimal.Decimal `json:"iof_brl,omitempty"`
	Category       Category        `json:"category"`
	MerchantCity   string          `json:"merchant_city,omitempty"`
	LedgerHash     string          `json:"ledger_hash"`
	PrevBillAmount decimal.Decimal `json:"prev_bill_amount,omitempty"`
	InterestAmount decimal.Decimal `json:"interest_amount,omitempty"`
	AmountOrig     decimal.Decimal `json:"amount_orig,omitempty"`
	CurrencyOrig   string          `json:"currency_orig,omitempty"`
	AmountUSD      decimal.Decimal `json:"amount_usd,omitempty"`

	Line int `json:"-"`
}

// HasInstallments reports whether both installment fields are set
func (t *Transaction) HasInstallments() bool {
	return t.InstallmentSeq > 0 && t.InstallmentTot > 0
}

// Columns is the fixed 16-column output contract, in order. External writers
// must not reorder or rename these.
var Columns = []string{
	"card_last4",
	"post_date",
	"desc_raw",
	"amount_brl",
	"installment_seq",
	"installment_tot",
	"fx_rate",
	"iof_brl",
	"category",
	"merchant_city",
	"ledger_hash",
	"prev_bill_amount",
	"interest_amount",
	"amount_orig",
	"currency_orig",
	"amount_usd",
}

// Stats summarizes one statement parse. The counters make silent data loss
// visible to the caller: a statement that yields zero transactions is valid
// output, and the miss and reject counts say why.
type Stats struct {
	Lines       int `json:"lines"`
	HeaderDrops int `json:"header_drops"`
	CardHeaders int `json:"card_headers"`
	FX          int `json:"fx"`
	Payments    int `json:"payments"`
	Domestic    int `json:"domestic"`
	IOF         int `json:"iof"`
	Encargos    int `json:"encargos"`
	Unmatched   int `json:"unmatched"`
	Duplicates  int `json:"duplicates"`
	Suppressed  int `json:"payments_suppressed"`
	Rejected    int `json:"rejected"`
}

// Postings returns the total number of transactions emitted across classes
func (s *Stats) Postings() int {
	return s.FX + s.Payments + s.Domestic + s.IOF + s.Encargos
}
