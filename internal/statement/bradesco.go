package statement

import (
	"math"
	"regexp"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Bradesco exports may hold several statement sections, each introduced by
// the same header and usually closed by a ";;Total;" row.
//
//	Extrato de: Agência: 1234 | Conta: 56789-0
//	Data;Histórico;Docto.;Crédito (R$);Débito (R$);Saldo (R$)
//	02/01/2025;PIX RECEBIDO;1234567;1.500,00;;2.800,00
//	03/01/2025;TARIFA BANCARIA;0;;35,90;2.764,10
//	;;Total;1.500,00;35,90;
const (
	brColDate = iota
	brColHistory
	brColDocument
	brColCredit
	brColDebit
	brColBalance
	brMinColumns
)

const bradescoSectionEnd = ";;Total;"

var (
	bradescoHeader   = regexp.MustCompile(`(?i)^Data;Histórico;Docto\.;Crédito \(R\$\);Débito \(R\$\);Saldo \(R\$\)`)
	bradescoRowStart = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)
	bradescoDate     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

	bradescoNoise = []string{
		"Extrato de:",
		"Filtro de resultados",
		"Os dados acima",
		"Últimos Lancamentos",
	}
)

// BradescoParser parses semicolon-separated Bradesco exports.
type BradescoParser struct{}

func (BradescoParser) Dialect() domain.Dialect { return domain.DialectBradesco }

func (p BradescoParser) Parse(text string) (*Result, error) {
	lines := splitLines(text)

	var headers []int
	for i, l := range lines {
		if bradescoHeader.MatchString(strings.TrimSpace(l)) {
			headers = append(headers, i)
		}
	}
	if len(headers) == 0 {
		return nil, &FormatError{
			Dialect: domain.DialectBradesco,
			Msg:     "Cabeçalho de transações não encontrado (linha com Data;Histórico;Docto...).",
		}
	}

	res := &Result{Dialect: domain.DialectBradesco}
	for _, h := range headers {
		for i := h + 1; i < len(lines); i++ {
			trimmed := strings.TrimSpace(lines[i])
			if bradescoHeader.MatchString(trimmed) || strings.HasPrefix(trimmed, bradescoSectionEnd) {
				break
			}
			if trimmed == "" || isBradescoNoise(trimmed) || !bradescoRowStart.MatchString(trimmed) {
				continue
			}
			raw := domain.RawLine{Dialect: domain.DialectBradesco, LineNo: i + 1, Fields: strings.Split(trimmed, ";")}
			tx, valid, movement := p.convert(raw)
			if !valid {
				res.skip(raw)
				continue
			}
			if !movement {
				// balance-only line, e.g. SALDO ANTERIOR
				continue
			}
			res.Transactions = append(res.Transactions, tx)
		}
	}
	return res, nil
}

func isBradescoNoise(line string) bool {
	for _, prefix := range bradescoNoise {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// convert reports valid=false for structurally broken rows and
// movement=false for rows whose credit and debit are both empty or zero.
func (BradescoParser) convert(raw domain.RawLine) (tx domain.ParsedTransaction, valid, movement bool) {
	if len(raw.Fields) < brMinColumns {
		return tx, false, false
	}
	dateField := strings.TrimSpace(raw.Fields[brColDate])
	if !bradescoDate.MatchString(dateField) {
		return tx, false, false
	}
	date, ok := ParseDate(dateField, DateSlashed)
	if !ok {
		return tx, false, false
	}

	var amount float64
	var direction domain.Direction
	credit, creditOK := ParseMoneyBR(raw.Fields[brColCredit])
	debit, debitOK := ParseMoneyBR(raw.Fields[brColDebit])
	switch {
	case creditOK && credit != 0:
		amount, direction = credit, domain.DirectionIncome
	case debitOK && debit != 0:
		amount, direction = -math.Abs(debit), domain.DirectionSpend
	default:
		return tx, true, false
	}

	return domain.ParsedTransaction{
		Date:        date,
		Description: strings.TrimSpace(raw.Fields[brColHistory]),
		Amount:      &amount,
		Direction:   direction,
		Reference:   strings.TrimSpace(raw.Fields[brColDocument]),
		Balance:     optionalMoney(ParseMoneyBR(raw.Fields[brColBalance])),
	}, true, true
}
