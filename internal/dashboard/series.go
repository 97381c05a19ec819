package dashboard

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-dashboard/internal/store"
)

// Point is one period of a series.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// Series holds the income and spend series over a shared period axis.
type Series struct {
	SeriesEntradas []Point `json:"seriesEntradas"`
	SeriesSaidas   []Point `json:"seriesSaidas"`
}

// PeriodKey labels the period containing d: the date itself for day, the
// Monday starting its week for week, and YYYY-MM for month.
func PeriodKey(d civil.Date, g GroupBy) string {
	switch g {
	case GroupByWeek:
		offset := (int(d.Weekday()) + 6) % 7 // days since Monday
		return d.AddDays(-offset).String()
	case GroupByMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
	}
	return d.String()
}

// Series returns income and spend per period. Both series use the same
// exclusions as Overview and cover the union of periods, zero-filled.
func (e *Engine) Series(ctx context.Context, f store.Filter, g GroupBy) (*Series, error) {
	income, err := e.daily(ctx, "t.amount", incomePredicate, f)
	if err != nil {
		return nil, fmt.Errorf("Series: income: %w", err)
	}
	spend, err := e.daily(ctx, "ABS(t.amount)", spendPredicate, f)
	if err != nil {
		return nil, fmt.Errorf("Series: spend: %w", err)
	}
	s := MergeSeries(bucket(income, g), bucket(spend, g))
	return &s, nil
}

type dayTotal struct {
	Date  civil.Date
	Total float64
}

func (e *Engine) daily(ctx context.Context, expr, predicate string, f store.Filter) ([]dayTotal, error) {
	where, args := f.Where("t")
	rows, err := e.db.QueryContext(ctx, `
		SELECT t.date, SUM(`+expr+`)
		FROM transactions t
		WHERE `+predicate+` AND `+where+`
		GROUP BY t.date
		ORDER BY t.date`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dayTotal
	for rows.Next() {
		var dt dayTotal
		if err := rows.Scan(&dt.Date, &dt.Total); err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// bucket sums daily totals into periods.
func bucket(days []dayTotal, g GroupBy) map[string]float64 {
	out := make(map[string]float64)
	for _, d := range days {
		out[PeriodKey(d.Date, g)] += d.Total
	}
	return out
}

// MergeSeries aligns two period maps on the sorted union of their keys; a
// period missing from one side is zero there.
func MergeSeries(income, spend map[string]float64) Series {
	keys := make([]string, 0, len(income)+len(spend))
	seen := make(map[string]bool)
	for _, m := range []map[string]float64{income, spend} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	s := Series{SeriesEntradas: make([]Point, 0, len(keys)), SeriesSaidas: make([]Point, 0, len(keys))}
	for _, k := range keys {
		s.SeriesEntradas = append(s.SeriesEntradas, Point{X: k, Y: income[k]})
		s.SeriesSaidas = append(s.SeriesSaidas, Point{X: k, Y: spend[k]})
	}
	return s
}
