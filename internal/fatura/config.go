package fatura

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/lox/itau-fatura-parser/internal/types"
)

// CategoryRule maps a description keyword to a category. Rules are applied
// in order; the first matching keyword wins.
type CategoryRule struct {
	Keyword  string
	Category types.Category
}

// MerchantCityRule maps a merchant substring to its city. Rules are applied
// in order; the first matching merchant wins.
type MerchantCityRule struct {
	Merchant string
	City     string
}

// Config carries every table and constant the parser consults. It is built
// once, never mutated, and injected at construction time so per-issuer
// variants can coexist and be tested independently.
type Config struct {
	// PaymentMarker is the fixed merchant code that identifies payment lines
	// on the statement ("7117" on Itaú faturas)
	PaymentMarker string

	// AdjustmentThreshold is the small-value heuristic bound: a non-zero
	// amount at or below it classifies as AJUSTE
	AdjustmentThreshold decimal.Decimal

	// PrevBillKeywords suppress a payment line as a previous-bill payoff
	// regardless of its ordinal
	PrevBillKeywords []string

	// ChargeKeywords classify a description as ENCARGOS in the categorizer
	ChargeKeywords []string

	// InterestLineKeywords identify standalone interest and penalty lines
	InterestLineKeywords []string

	// CategoryRules is the ordered merchant keyword table
	CategoryRules []CategoryRule

	// FXKeywords are currency codes and hints that classify a description as
	// a foreign purchase when nothing else matches
	FXKeywords []string

	// MerchantCities is the ordered merchant-to-city table. Sample data
	// tuned to one reference dataset; consulted before the generic
	// first-token extraction, never required.
	MerchantCities []MerchantCityRule

	// CardHeaderRes are the accepted card-number marker forms
	CardHeaderRes []*regexp.Regexp

	// DropHeaderRe matches section headers that carry no postings
	DropHeaderRe *regexp.Regexp

	// RateLineRe matches the conversion-rate line of an FX cluster and
	// captures the 4-decimal rate
	RateLineRe *regexp.Regexp

	// SuspiciousMin and SuspiciousMax bound plausible posting amounts;
	// amounts outside are logged, not rejected
	SuspiciousMin decimal.Decimal
	SuspiciousMax decimal.Decimal
}

// DefaultConfig returns the Itaú fatura configuration
func DefaultConfig() Config {
	return Config{
		PaymentMarker:        "7117",
		AdjustmentThreshold:  decimal.RequireFromString("0.30"),
		PrevBillKeywords:     []string{"fatura anterior", "ref.", "refª", "pagt anterior"},
		ChargeKeywords:       []string{"IOF", "JUROS", "MULTA"},
		InterestLineKeywords: []string{"JUROS", "MULTA", "IOF DE FINANCIAMENTO"},
		CategoryRules: []CategoryRule{
			{"ACELERADOR", types.CategoryServicos},
			{"PONTOS", types.CategoryServicos},
			{"ANUIDADE", types.CategoryServicos},
			{"SEGURO", types.CategoryServicos},
			{"TARIFA", types.CategoryServicos},
			{"PRODUTO", types.CategoryServicos},
			{"SERVIÇO", types.CategoryServicos},
			{"SUPERMERC", types.CategorySupermercado},
			{"MERCADO", types.CategorySupermercado},
			{"FARMAC", types.CategoryFarmacia},
			{"DROG", types.CategoryFarmacia},
			{"PANVEL", types.CategoryFarmacia},
			{"RESTAUR", types.CategoryRestaurante},
			{"PIZZ", types.CategoryRestaurante},
			{"BAR", types.CategoryRestaurante},
			{"CAFÉ", types.CategoryRestaurante},
			{"LANCHE", types.CategoryRestaurante},
			{"ALIMENT", types.CategoryAlimentacao},
			{"IFD", types.CategoryAlimentacao},
			{"POSTO", types.CategoryPosto},
			{"COMBUST", types.CategoryPosto},
			{"GASOLIN", types.CategoryPosto},
			{"UBER", types.CategoryTransporte},
			{"TAXI", types.CategoryTransporte},
			{"TRANSP", types.CategoryTransporte},
			{"PASSAGEM", types.CategoryTransporte},
			{"AEROPORTO", types.CategoryTurismo},
			{"HOTEL", types.CategoryTurismo},
			{"TUR", types.CategoryTurismo},
			{"ENTRETENIM", types.CategoryTurismo},
			{"SAUD", types.CategorySaude},
			{"VEIC", types.CategoryVeiculos},
			{"VEST", types.CategoryVestuario},
			{"LOJA", types.CategoryVestuario},
			{"MAGAZINE", types.CategoryVestuario},
			{"EDU", types.CategoryEducacao},
			{"HOBBY", types.CategoryHobby},
			{"DIVERS", types.CategoryDiversos},
		},
		FXKeywords: []string{"EUR", "USD", "FX"},
		MerchantCities: []MerchantCityRule{
			{"AUTOGRILL ITALIA", "FIUMICINO"},
			{"BUFFET ROMA", "ROMA"},
			{"SUMUP", "MILANO"},
			{"FIGMA", "SAN FRANCISCO"},
			{"OPENAI", "SAN FRANCISCO"},
		},
		CardHeaderRes: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Lançamentos no cartão.*?final (\d{4})`),
			regexp.MustCompile(`final (\d{4})`),
		},
		DropHeaderRe:  regexp.MustCompile(`(?i)^(Total |Lançamentos|Limites|Encargos|Próxima fatura|Demais faturas|Parcelamento da fatura|Simulação|Pontos|Cashback|Outros lançamentos|Limite total de crédito|Fatura anterior|Saldo financiado|Produtos e serviços|Tarifa|Compras parceladas - próximas faturas)`),
		RateLineRe:    regexp.MustCompile(`(?i)^D[óo]lar de Convers[ãa]o.*?(\d+,\d{4})`),
		SuspiciousMin: decimal.RequireFromString("0.01"),
		SuspiciousMax: decimal.NewFromInt(10000),
	}
}
