// Package statement turns bank statement CSV exports into parsed transactions.
package statement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// ErrUnrecognizedFormat is returned when no known header signature is present.
var ErrUnrecognizedFormat = errors.New("Formato de CSV não reconhecido. Formatos suportados: Mercado Pago, Nubank, Bradesco")

// FormatError reports a file that matched a dialect but cannot be parsed as one.
type FormatError struct {
	Dialect domain.Dialect
	Msg     string
}

func (e *FormatError) Error() string {
	return e.Msg
}

const msgNoTransactions = "Nenhuma transação encontrada no CSV."

// Result is the output of a dialect parser.
type Result struct {
	Dialect      domain.Dialect
	Transactions []domain.ParsedTransaction
	// Skipped counts data rows that failed structural validation.
	Skipped      int
	SkippedLines []int
}

func (r *Result) skip(line domain.RawLine) {
	r.Skipped++
	r.SkippedLines = append(r.SkippedLines, line.LineNo)
}

// Parser converts the text of one dialect into parsed transactions.
type Parser interface {
	Dialect() domain.Dialect
	Parse(text string) (*Result, error)
}

// Registry maps dialects to their parsers.
type Registry struct {
	parsers map[domain.Dialect]Parser
}

// NewRegistry creates a registry holding the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[domain.Dialect]Parser, len(parsers))}
	for _, p := range parsers {
		r.parsers[p.Dialect()] = p
	}
	return r
}

// DefaultRegistry returns a registry with all supported dialects.
func DefaultRegistry() *Registry {
	return NewRegistry(MercadoPagoParser{}, NubankParser{}, BradescoParser{})
}

// Get returns the parser for a dialect.
func (r *Registry) Get(d domain.Dialect) (Parser, error) {
	p, ok := r.parsers[d]
	if !ok {
		return nil, fmt.Errorf("no parser registered for dialect %q", d)
	}
	return p, nil
}

// Parse detects the dialect of text and parses it. A file without any
// transaction is rejected.
func (r *Registry) Parse(text string) (*Result, error) {
	text = NormalizeNewlines(text)
	dialect, err := Detect(text)
	if err != nil {
		return nil, err
	}
	return r.ParseDialect(dialect, text)
}

// ParseDialect parses text with the parser registered for d.
func (r *Registry) ParseDialect(d domain.Dialect, text string) (*Result, error) {
	p, err := r.Get(d)
	if err != nil {
		return nil, err
	}
	res, err := p.Parse(NormalizeNewlines(text))
	if err != nil {
		return nil, err
	}
	if len(res.Transactions) == 0 {
		return nil, &FormatError{Dialect: d, Msg: msgNoTransactions}
	}
	return res, nil
}

// NormalizeNewlines converts \r\n and lone \r into \n.
func NormalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func splitLines(text string) []string {
	return strings.Split(NormalizeNewlines(text), "\n")
}
