package statement

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestParseMoneyBR(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"1.234,56", 1234.56, true},
		{"-12,30", -12.3, true},
		{"0,00", 0, true},
		{" 99 ", 99, true},
		{"1.000", 1000, true},
		{"1.234.567,89", 1234567.89, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12,34,56", 0, false},
		{"NaN", 0, false},
		{"Infinity", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMoneyBR(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

// formatBR renders v the way Brazilian bank exports do: 1.234.567,89
func formatBR(v float64) string {
	neg := v < 0
	s := fmt.Sprintf("%.2f", math.Abs(v))
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

func TestParseMoneyBR_RoundTrip(t *testing.T) {
	values := []float64{0, 0.01, 1, 12.5, 999.99, 1000, 1234.56, -45.9, -1500000.07, 98765432.1}
	for _, v := range values {
		text := formatBR(v)
		got, ok := ParseMoneyBR(text)
		if assert.True(t, ok, text) {
			assert.InDelta(t, v, got, 0.005, text)
		}
	}
}

func TestParseMoneyDot(t *testing.T) {
	got, ok := ParseMoneyDot("-45.90")
	assert.True(t, ok)
	assert.InDelta(t, -45.9, got, 1e-9)

	_, ok = ParseMoneyDot("45,90x")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		layout DateLayout
		want   string
	}{
		{"dashed", "01-02-2025", DateDashed, "2025-02-01"},
		{"slashed", "31/12/2024", DateSlashed, "2024-12-31"},
		{"padded", " 05/03/2025 ", DateSlashed, "2025-03-05"},
		{"wrong separator", "01/02/2025", DateDashed, ""},
		{"short year", "01-02-25", DateDashed, ""},
		{"impossible day", "31/02/2025", DateSlashed, ""},
		{"empty", "", DateSlashed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDateToISO(tt.in, tt.layout))
		})
	}

	d, ok := ParseDate("15-08-2025", DateDashed)
	assert.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2025, Month: 8, Day: 15}, d)
}
