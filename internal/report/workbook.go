// Package report writes classified transactions to an XLSX workbook with a
// transactions sheet, a per-category summary and an overview.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Sheet names.
const (
	SheetTransactions = "Transações"
	SheetByCategory   = "Resumo por categoria"
	SheetOverview     = "Visão geral"
)

var transactionHeaders = []any{
	"data", "descricao_original", "valor", "tipo", "counterparty_normalized", "meio_pagamento",
	"category_id", "subcategory_id", "categoria", "subcategoria", "movement_kind",
	"is_internal_transfer", "is_card_bill_payment", "is_investment_aporte", "is_investment_rendimento",
}

var (
	categoryHeaders = []any{"categoria", "subcategoria", "qtd_transacoes", "total", "ticket_medio"}
	overviewHeaders = []any{"total_entradas", "total_saidas", "saldo_final_estimado"}
)

// CategoryRow is one line of the per-category summary. Totals keep the sign
// of the amounts.
type CategoryRow struct {
	Categoria    string
	Subcategoria string
	Qty          int
	Total        decimal.Decimal
	TicketMedio  decimal.Decimal
}

// Summary holds the two computed sheets.
type Summary struct {
	TotalEntradas      decimal.Decimal
	TotalSaidas        decimal.Decimal
	SaldoFinalEstimado decimal.Decimal
	ByCategory         []CategoryRow
}

// Summarize totals txs. Income leaves out internal transfers and investment
// returns; spend leaves out internal transfers and card bill payments.
// Category rows follow the order in which each label pair first appears.
func Summarize(txs []domain.ClassifiedTransaction) Summary {
	var s Summary
	index := map[[2]string]int{}
	for _, t := range txs {
		amount := decimal.NewFromFloat(t.Amount)
		switch t.Type {
		case domain.DirectionIncome:
			if t.IsInternalTransfer == 0 && t.IsInvestmentRendimento == 0 {
				s.TotalEntradas = s.TotalEntradas.Add(amount)
			}
		case domain.DirectionSpend:
			if t.IsInternalTransfer == 0 && t.IsCardBillPayment == 0 {
				s.TotalSaidas = s.TotalSaidas.Add(amount.Abs())
			}
		}

		sub := ""
		if t.SubcategoryLabel != nil {
			sub = *t.SubcategoryLabel
		}
		key := [2]string{t.CategoryLabel, sub}
		i, ok := index[key]
		if !ok {
			i = len(s.ByCategory)
			index[key] = i
			s.ByCategory = append(s.ByCategory, CategoryRow{Categoria: t.CategoryLabel, Subcategoria: sub})
		}
		s.ByCategory[i].Qty++
		s.ByCategory[i].Total = s.ByCategory[i].Total.Add(amount)
	}

	for i := range s.ByCategory {
		row := &s.ByCategory[i]
		row.TicketMedio = row.Total.Div(decimal.NewFromInt(int64(row.Qty))).Round(2)
		row.Total = row.Total.Round(2)
	}
	s.TotalEntradas = s.TotalEntradas.Round(2)
	s.TotalSaidas = s.TotalSaidas.Round(2)
	s.SaldoFinalEstimado = s.TotalEntradas.Sub(s.TotalSaidas)
	return s
}

// WriteWorkbook writes the three sheets for txs to w.
func WriteWorkbook(w io.Writer, txs []domain.ClassifiedTransaction) error {
	f, err := Build(txs)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build returns the workbook for txs. The caller closes it.
func Build(txs []domain.ClassifiedTransaction) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetTransactions); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetByCategory, SheetOverview} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	summary := Summarize(txs)
	sheets := []struct {
		name    string
		headers []any
		rows    [][]any
	}{
		{SheetTransactions, transactionHeaders, transactionRows(txs)},
		{SheetByCategory, categoryHeaders, categoryRows(summary.ByCategory)},
		{SheetOverview, overviewHeaders, [][]any{{
			summary.TotalEntradas.InexactFloat64(),
			summary.TotalSaidas.InexactFloat64(),
			summary.SaldoFinalEstimado.InexactFloat64(),
		}}},
	}
	for _, sh := range sheets {
		if err := writeSheet(f, sh.name, header, sh.headers, sh.rows); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, headers []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func transactionRows(txs []domain.ClassifiedTransaction) [][]any {
	rows := make([][]any, 0, len(txs))
	for _, t := range txs {
		var subID any = ""
		if t.SubcategoryID != nil {
			subID = *t.SubcategoryID
		}
		sub := ""
		if t.SubcategoryLabel != nil {
			sub = *t.SubcategoryLabel
		}
		rows = append(rows, []any{
			t.Date.String(), t.Description, decimal.NewFromFloat(t.Amount).Round(2).InexactFloat64(),
			string(t.Type), t.CounterpartyNormalized, t.PaymentMethod,
			t.CategoryID, subID, t.CategoryLabel, sub, string(t.MovementKind),
			t.IsInternalTransfer, t.IsCardBillPayment, t.IsInvestmentAporte, t.IsInvestmentRendimento,
		})
	}
	return rows
}

func categoryRows(cats []CategoryRow) [][]any {
	rows := make([][]any, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, []any{
			c.Categoria, c.Subcategoria, c.Qty, c.Total.InexactFloat64(), c.TicketMedio.InexactFloat64(),
		})
	}
	return rows
}
