package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = RefPeriod{Year: 2025, Month: 4}

func TestParseDayMonth(t *testing.T) {
	got, err := Parse("15/04", ref)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-15", got)
}

func TestParseFullDate(t *testing.T) {
	got, err := Parse("05/12/2024", ref)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-05", got)
}

func TestParseSingleDigitFields(t *testing.T) {
	got, err := Parse("7/3", ref)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", got)
}

func TestParseInvalidMonth(t *testing.T) {
	_, err := Parse("10/13", ref)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "10/13", perr.Input)
}

func TestParseInvalidDay(t *testing.T) {
	_, err := Parse("31/04", ref)
	assert.Error(t, err)

	_, err = Parse("29/02/2025", ref)
	assert.Error(t, err)
}

func TestParseNonDate(t *testing.T) {
	_, err := Parse("PAGAMENTO", ref)
	assert.Error(t, err)
}

func TestInferRefPeriodFromStatementMarker(t *testing.T) {
	lines := []string{
		"Itaú Uniclass Mastercard",
		"vencimento em 10/05/2025",
	}
	got := InferRefPeriod(lines, "fatura.txt", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, RefPeriod{Year: 2025, Month: 5}, got)
}

func TestInferRefPeriodYearMarker(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	// The year-only marker pins the year; the due date supplies the month
	lines := []string{"Fatura de abril/2025", "Vencimento em 10/05/2025"}
	got := InferRefPeriod(lines, "fatura.txt", now)
	assert.Equal(t, RefPeriod{Year: 2025, Month: 5}, got)

	// Without a due date, the filename stamp supplies the month
	got = InferRefPeriod([]string{"Fatura de abril/2025"}, "fatura_2024-04.txt", now)
	assert.Equal(t, RefPeriod{Year: 2025, Month: 4}, got)
}

func TestInferRefPeriodFromFilename(t *testing.T) {
	got := InferRefPeriod(nil, "fatura_2025-04.txt", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, RefPeriod{Year: 2025, Month: 4}, got)

	got = InferRefPeriod(nil, "2024_11_itau.txt", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, RefPeriod{Year: 2024, Month: 11}, got)
}

func TestInferRefPeriodFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	got := InferRefPeriod(nil, "fatura.txt", now)
	assert.Equal(t, RefPeriod{Year: 2026, Month: 8}, got)
}
