package dashboard

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-dashboard/internal/store"
)

// GroupBy is the period granularity of a series.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// ParseGroupBy accepts day, week or month; empty means day.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupByDay, nil
	case GroupByDay, GroupByWeek, GroupByMonth:
		return g, nil
	}
	return "", fmt.Errorf("groupBy inválido: %q (use day, week ou month)", s)
}

// ParseFilters reads the shared query parameters: from, to, categoryIds,
// subcategoryIds, paymentMethodIds, paymentMethods and q. Non-numeric ids
// are ignored; malformed dates are an error.
func ParseFilters(v url.Values) (store.Filter, error) {
	var f store.Filter
	var err error
	if f.From, err = parseDate(v.Get("from")); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseDate(v.Get("to")); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	f.CategoryIDs = ParseIDs(v.Get("categoryIds"))
	f.SubcategoryIDs = ParseIDs(v.Get("subcategoryIds"))
	f.PaymentMethodIDs = ParseIDs(v.Get("paymentMethodIds"))
	if len(f.PaymentMethodIDs) == 0 {
		for _, code := range strings.Split(v.Get("paymentMethods"), ",") {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				f.PaymentMethodCodes = append(f.PaymentMethodCodes, code)
			}
		}
	}
	f.Query = strings.TrimSpace(v.Get("q"))
	return f, nil
}

// ParseIDs splits a comma-separated id list, skipping anything that is not
// an integer.
func ParseIDs(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func parseDate(s string) (*civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("data inválida %q, use AAAA-MM-DD", s)
	}
	return &d, nil
}
