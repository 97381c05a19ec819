package statement

import (
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Nubank account export layout. The description is the last column and may
// itself contain commas, so everything from the fourth field on is rejoined.
//
//	Data,Valor,Identificador,Descrição
//	01/02/2025,-45.90,67a1b2c3-...,Compra no débito - Padaria, Centro
const (
	nuColDate = iota
	nuColAmount
	nuColIdentifier
	nuColDescription
	nuMinColumns
)

// NubankParser parses comma-separated Nubank exports.
type NubankParser struct{}

func (NubankParser) Dialect() domain.Dialect { return domain.DialectNubank }

func (p NubankParser) Parse(text string) (*Result, error) {
	res := &Result{Dialect: domain.DialectNubank}
	headerSeen := false
	for i, l := range splitLines(text) {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		raw := domain.RawLine{Dialect: domain.DialectNubank, LineNo: i + 1, Fields: splitNubank(l)}
		tx, ok := p.convert(raw)
		if !ok {
			res.skip(raw)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

// splitNubank returns the first three comma-separated fields followed by the
// rest of the line as a single description field.
func splitNubank(line string) []string {
	parts := strings.Split(line, ",")
	if len(parts) <= nuMinColumns {
		return parts
	}
	fields := make([]string, 0, nuMinColumns)
	fields = append(fields, parts[:nuColDescription]...)
	return append(fields, strings.Join(parts[nuColDescription:], ","))
}

func (NubankParser) convert(raw domain.RawLine) (domain.ParsedTransaction, bool) {
	if len(raw.Fields) < nuMinColumns {
		return domain.ParsedTransaction{}, false
	}
	date, ok := ParseDate(raw.Fields[nuColDate], DateSlashed)
	if !ok {
		return domain.ParsedTransaction{}, false
	}
	amount := optionalMoney(ParseMoneyDot(raw.Fields[nuColAmount]))
	return domain.ParsedTransaction{
		Date:        date,
		Description: unquote(strings.TrimSpace(raw.Fields[nuColDescription])),
		Amount:      amount,
		Direction:   domain.DirectionOf(amount),
		Reference:   strings.TrimSpace(raw.Fields[nuColIdentifier]),
		ExternalID:  strings.TrimSpace(raw.Fields[nuColIdentifier]),
	}, true
}

// unquote strips one pair of surrounding double quotes and unescapes "".
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
