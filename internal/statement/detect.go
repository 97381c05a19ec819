package statement

import (
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Header signatures, checked in this order.
const (
	signatureMercadoPago = "RELEASE_DATE;TRANSACTION_TYPE"
	signatureNubank      = "Data,Valor,Identificador,Descrição"
	signatureBradesco    = "Data;Histórico;Docto.;Crédito (R$);Débito (R$);Saldo (R$)"
)

// Detect selects the dialect whose header signature appears in text.
func Detect(text string) (domain.Dialect, error) {
	switch {
	case strings.Contains(text, signatureMercadoPago):
		return domain.DialectMercadoPago, nil
	case strings.Contains(text, signatureNubank):
		return domain.DialectNubank, nil
	case strings.Contains(text, signatureBradesco):
		return domain.DialectBradesco, nil
	}
	return "", ErrUnrecognizedFormat
}
