package dashboard

import (
	"context"
	"net/url"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/store"
	"github.com/dvloznov/finance-dashboard/internal/store/storetest"
)

func id(v int64) *int64 { return &v }

func date(m, d int) civil.Date { return civil.Date{Year: 2024, Month: time.Month(m), Day: d} }

func fixture(t *testing.T) *Engine {
	t.Helper()
	s := storetest.New(t)
	rows := []domain.Transaction{
		{Date: date(1, 1), Description: "Salário", Type: domain.DirectionIncome, Amount: 5000, CategoryID: id(1000), SubcategoryID: id(1001), PaymentMethodID: id(2)},
		{Date: date(1, 2), Description: "Supermercado Dia", Type: domain.DirectionSpend, Amount: -300, CategoryID: id(200), SubcategoryID: id(201), PaymentMethodID: id(6)},
		{Date: date(1, 3), Description: "Restaurante", Type: domain.DirectionSpend, Amount: -100, CategoryID: id(200), SubcategoryID: id(202), PaymentMethodID: id(7)},
		{Date: date(1, 7), Description: "Uber", Type: domain.DirectionSpend, Amount: -50, CategoryID: id(300), SubcategoryID: id(302), PaymentMethodID: id(7)},
		{Date: date(1, 8), Description: "Pix entre contas", Type: domain.DirectionSpend, Amount: -9999, CategoryID: id(200), SubcategoryID: id(201), PaymentMethodID: id(1), IsInternalTransfer: true},
		{Date: date(1, 8), Description: "Pix recebido de mim", Type: domain.DirectionIncome, Amount: 1000, CategoryID: id(700), SubcategoryID: id(701), PaymentMethodID: id(1), IsInternalTransfer: true},
		{Date: date(1, 10), Description: "Pagamento fatura", Type: domain.DirectionSpend, Amount: -2000, CategoryID: id(800), SubcategoryID: id(801), PaymentMethodID: id(5), IsCardBillPayment: true},
		{Date: date(1, 15), Description: "Aplicação CDB", Type: domain.DirectionSpend, Amount: -500, CategoryID: id(600), SubcategoryID: id(601), PaymentMethodID: id(4), IsInvestment: true},
		{Date: date(1, 20), Description: "Rendimento CDB", Type: domain.DirectionIncome, Amount: 30, CategoryID: id(600), SubcategoryID: id(603), PaymentMethodID: id(4), IsInvestment: true},
		{Date: date(2, 5), Description: "Tarifa pacote", Type: domain.DirectionSpend, Amount: -15, CategoryID: id(900), SubcategoryID: id(901), PaymentMethodID: id(9), IsFee: true},
		{Date: date(2, 6), Description: "Loja X", Merchant: "LOJA", Type: domain.DirectionSpend, Amount: -40},
		{Date: date(2, 7), Description: "Compra", Merchant: "Extra", Type: domain.DirectionSpend, Amount: -60, CategoryID: id(200), SubcategoryID: id(201), PaymentMethodID: id(1)},
	}
	for i, r := range rows {
		r.Hash = r.Description
		_, err := s.InsertTransaction(context.Background(), r)
		require.NoError(t, err, "row %d", i)
	}
	return New(s)
}

func TestOverview(t *testing.T) {
	e := fixture(t)
	o, err := e.Overview(context.Background(), store.Filter{})
	require.NoError(t, err)

	assert.InDelta(t, 5000, o.TotalEntradas, 1e-9, "transfers and investment returns are not income")
	assert.InDelta(t, 550, o.TotalSaidas, 1e-9)
	assert.InDelta(t, 15, o.Tarifas, 1e-9)
	assert.InDelta(t, 500, o.InvestimentosAportes, 1e-9)
	assert.InDelta(t, 5000-(550+15), o.SaldoFinalEstimado, 1e-9)
}

func TestByCategory(t *testing.T) {
	e := fixture(t)
	got, err := e.ByCategory(context.Background(), store.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "Alimentação", got[0].Categoria)
	require.NotNil(t, got[0].Subcategoria)
	assert.Equal(t, "Supermercado", *got[0].Subcategoria)
	assert.Equal(t, 2, got[0].Qty)
	assert.InDelta(t, 360, got[0].Total, 1e-9)
	assert.InDelta(t, 180, got[0].TicketMedio, 1e-9)

	assert.InDelta(t, 100, got[1].Total, 1e-9)
	assert.InDelta(t, 50, got[2].Total, 1e-9)

	assert.Equal(t, "Sem categoria", got[3].Categoria)
	assert.Nil(t, got[3].Subcategoria)
	assert.Nil(t, got[3].CategoryID)
}

func TestTopSubcategories(t *testing.T) {
	e := fixture(t)
	got, err := e.TopSubcategories(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []SubcategoryTotal{
		{Subcategoria: "Supermercado", Categoria: "Alimentação", Total: 360},
		{Subcategoria: "Restaurantes", Categoria: "Alimentação", Total: 100},
		{Subcategoria: "Aplicativos de transporte", Categoria: "Transporte", Total: 50},
		{Subcategoria: "—", Categoria: "Sem categoria", Total: 40},
	}, got)
}

func TestBreakdownsSumToOverview(t *testing.T) {
	e := fixture(t)
	ctx := context.Background()
	filters := map[string]store.Filter{
		"none":          {},
		"january":       {From: ptrDate(date(1, 2)), To: ptrDate(date(1, 31))},
		"search":        {Query: "extra"},
		"category":      {CategoryIDs: []int64{200}},
		"subcategory":   {SubcategoryIDs: []int64{201, 302}},
		"payment ids":   {PaymentMethodIDs: []int64{1, 7}},
		"payment codes": {PaymentMethodCodes: []string{"CARTAO_CREDITO"}},
		"empty range":   {From: ptrDate(date(6, 1))},
	}
	for name, f := range filters {
		t.Run(name, func(t *testing.T) {
			o, err := e.Overview(ctx, f)
			require.NoError(t, err)

			cats, err := e.ByCategory(ctx, f)
			require.NoError(t, err)
			var catSum float64
			for _, c := range cats {
				catSum += c.Total
			}
			assert.InDelta(t, o.TotalSaidas, catSum, 1e-9)

			top, err := e.TopSubcategories(ctx, f)
			require.NoError(t, err)
			var topSum float64
			for _, s := range top {
				topSum += s.Total
			}
			assert.InDelta(t, o.TotalSaidas, topSum, 1e-9)

			series, err := e.Series(ctx, f, GroupByMonth)
			require.NoError(t, err)
			var seriesSpend, seriesIncome float64
			for i := range series.SeriesSaidas {
				seriesSpend += series.SeriesSaidas[i].Y
				seriesIncome += series.SeriesEntradas[i].Y
			}
			assert.InDelta(t, o.TotalSaidas, seriesSpend, 1e-9)
			assert.InDelta(t, o.TotalEntradas, seriesIncome, 1e-9)
		})
	}
}

func TestInternalTransfersNeverCount(t *testing.T) {
	e := fixture(t)
	ctx := context.Background()
	f := store.Filter{Query: "pix"}

	o, err := e.Overview(ctx, f)
	require.NoError(t, err)
	assert.Zero(t, o.TotalEntradas)
	assert.Zero(t, o.TotalSaidas)

	cats, err := e.ByCategory(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, cats)

	top, err := e.TopSubcategories(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestOverview_QueryIgnoresCaseAndAccents(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	_, err := s.InsertTransaction(ctx, domain.Transaction{
		Date: date(3, 1), Description: "TRANSFERÊNCIA PIX ÁGUA", Type: domain.DirectionSpend, Amount: -80, Hash: "agua",
	})
	require.NoError(t, err)
	e := New(s)

	for _, q := range []string{"TRANSFERÊNCIA", "transferência", "água", "agua", "pix"} {
		o, err := e.Overview(ctx, store.Filter{Query: q})
		require.NoError(t, err)
		assert.InDelta(t, 80, o.TotalSaidas, 1e-9, "query %q", q)
	}
}

func TestSeries(t *testing.T) {
	e := fixture(t)
	ctx := context.Background()

	month, err := e.Series(ctx, store.Filter{}, GroupByMonth)
	require.NoError(t, err)
	assert.Equal(t, []Point{{"2024-01", 5000}, {"2024-02", 0}}, month.SeriesEntradas)
	assert.Equal(t, []Point{{"2024-01", 450}, {"2024-02", 100}}, month.SeriesSaidas)

	week, err := e.Series(ctx, store.Filter{}, GroupByWeek)
	require.NoError(t, err)
	assert.Equal(t, []Point{{"2024-01-01", 5000}, {"2024-02-05", 0}}, week.SeriesEntradas)
	assert.Equal(t, []Point{{"2024-01-01", 450}, {"2024-02-05", 100}}, week.SeriesSaidas)

	days, err := e.Series(ctx, store.Filter{}, GroupByDay)
	require.NoError(t, err)
	require.Len(t, days.SeriesEntradas, 6)
	assert.Equal(t, Point{"2024-01-01", 5000}, days.SeriesEntradas[0])
	assert.Equal(t, Point{"2024-01-01", 0}, days.SeriesSaidas[0])
	assert.Equal(t, Point{"2024-02-07", 60}, days.SeriesSaidas[5])
}

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		d    civil.Date
		g    GroupBy
		want string
	}{
		{date(1, 7), GroupByDay, "2024-01-07"},
		{date(1, 7), GroupByWeek, "2024-01-01"}, // Sunday
		{date(1, 1), GroupByWeek, "2024-01-01"}, // Monday
		{date(3, 2), GroupByWeek, "2024-02-26"}, // crosses the month
		{date(12, 31), GroupByMonth, "2024-12"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PeriodKey(tt.d, tt.g), "%s %s", tt.d, tt.g)
	}
}

func TestMergeSeries(t *testing.T) {
	s := MergeSeries(
		map[string]float64{"2024-03": 10, "2024-01": 5},
		map[string]float64{"2024-02": 7, "2024-03": 1},
	)
	assert.Equal(t, []Point{{"2024-01", 5}, {"2024-02", 0}, {"2024-03", 10}}, s.SeriesEntradas)
	assert.Equal(t, []Point{{"2024-01", 0}, {"2024-02", 7}, {"2024-03", 1}}, s.SeriesSaidas)

	empty := MergeSeries(nil, nil)
	assert.NotNil(t, empty.SeriesEntradas)
	assert.Empty(t, empty.SeriesSaidas)
}

func TestParseFilters(t *testing.T) {
	v := url.Values{
		"from":             {"2024-01-01"},
		"categoryIds":      {"1, 2,abc,,3"},
		"paymentMethodIds": {""},
		"paymentMethods":   {"pix, ted"},
		"q":                {"  Uber "},
	}
	f, err := ParseFilters(v)
	require.NoError(t, err)
	require.NotNil(t, f.From)
	assert.Equal(t, date(1, 1), *f.From)
	assert.Nil(t, f.To)
	assert.Equal(t, []int64{1, 2, 3}, f.CategoryIDs)
	assert.Nil(t, f.SubcategoryIDs)
	assert.Equal(t, []string{"PIX", "TED"}, f.PaymentMethodCodes)
	assert.Equal(t, "Uber", f.Query)

	f, err = ParseFilters(url.Values{"paymentMethodIds": {"4"}, "paymentMethods": {"PIX"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, f.PaymentMethodIDs)
	assert.Nil(t, f.PaymentMethodCodes)

	_, err = ParseFilters(url.Values{"to": {"31/01/2024"}})
	assert.Error(t, err)
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("")
	require.NoError(t, err)
	assert.Equal(t, GroupByDay, g)

	g, err = ParseGroupBy("Week")
	require.NoError(t, err)
	assert.Equal(t, GroupByWeek, g)

	_, err = ParseGroupBy("year")
	assert.Error(t, err)
}

func ptrDate(d civil.Date) *civil.Date { return &d }
