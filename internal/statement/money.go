package statement

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DateLayout is a fixed-width day-first date layout used by bank exports.
type DateLayout int

const (
	// DateDashed is DD-MM-YYYY.
	DateDashed DateLayout = iota
	// DateSlashed is DD/MM/YYYY.
	DateSlashed
)

var dateLayouts = map[DateLayout]*regexp.Regexp{
	DateDashed:  regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`),
	DateSlashed: regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`),
}

// ParseMoneyBR parses Brazilian currency text ("1.234,56", "-12,30").
// Thousands dots are removed and the first decimal comma becomes a point.
// ok is false when s is empty or not a finite number.
func ParseMoneyBR(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	return parseDecimal(s)
}

// ParseMoneyDot parses a plain dot-decimal amount ("-12.50").
func ParseMoneyDot(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	return parseDecimal(s)
}

func parseDecimal(s string) (float64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ParseDate converts a day-first date in the given layout to a calendar date.
// ok is false on pattern mismatch or an impossible date such as 31/02/2025.
func ParseDate(s string, layout DateLayout) (civil.Date, bool) {
	re, found := dateLayouts[layout]
	if !found {
		return civil.Date{}, false
	}
	m := re.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return civil.Date{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	if !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

// ParseDateToISO is ParseDate rendered as YYYY-MM-DD, or "" when unparseable.
func ParseDateToISO(s string, layout DateLayout) string {
	d, ok := ParseDate(s, layout)
	if !ok {
		return ""
	}
	return d.String()
}
