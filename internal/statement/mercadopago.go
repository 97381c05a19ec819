package statement

import (
	"regexp"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Mercado Pago account statement layout:
//
//	INITIAL_BALANCE;CREDITS;DEBITS;FINAL_BALANCE   (summary block, ignored)
//	RELEASE_DATE;TRANSACTION_TYPE;REFERENCE_ID;TRANSACTION_NET_AMOUNT;PARTIAL_BALANCE
//	01-02-2025;Pagamento com QR Pix;100000001;-45,90;1.254,10
const (
	mpColDate = iota
	mpColType
	mpColReference
	mpColAmount
	mpColBalance
	mpMinColumns
)

var mercadoPagoHeader = regexp.MustCompile(`(?i)^RELEASE_DATE;TRANSACTION_TYPE;REFERENCE_ID;TRANSACTION_NET_AMOUNT;PARTIAL_BALANCE`)

// MercadoPagoParser parses semicolon-separated Mercado Pago exports.
type MercadoPagoParser struct{}

func (MercadoPagoParser) Dialect() domain.Dialect { return domain.DialectMercadoPago }

func (p MercadoPagoParser) Parse(text string) (*Result, error) {
	lines := splitLines(text)

	headerIdx := -1
	for i, l := range lines {
		if mercadoPagoHeader.MatchString(l) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, &FormatError{
			Dialect: domain.DialectMercadoPago,
			Msg:     "Cabeçalho de transações não encontrado (linha com RELEASE_DATE ...).",
		}
	}

	res := &Result{Dialect: domain.DialectMercadoPago}
	for i := headerIdx + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		raw := domain.RawLine{Dialect: domain.DialectMercadoPago, LineNo: i + 1, Fields: strings.Split(lines[i], ";")}
		tx, ok := p.convert(raw)
		if !ok {
			res.skip(raw)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

func (MercadoPagoParser) convert(raw domain.RawLine) (domain.ParsedTransaction, bool) {
	if len(raw.Fields) < mpMinColumns {
		return domain.ParsedTransaction{}, false
	}
	date, ok := ParseDate(raw.Fields[mpColDate], DateDashed)
	if !ok {
		return domain.ParsedTransaction{}, false
	}
	amount := optionalMoney(ParseMoneyBR(raw.Fields[mpColAmount]))
	return domain.ParsedTransaction{
		Date:        date,
		Description: strings.TrimSpace(raw.Fields[mpColType]),
		Amount:      amount,
		Direction:   domain.DirectionOf(amount),
		Reference:   strings.TrimSpace(raw.Fields[mpColReference]),
		Balance:     optionalMoney(ParseMoneyBR(raw.Fields[mpColBalance])),
	}, true
}

func optionalMoney(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
