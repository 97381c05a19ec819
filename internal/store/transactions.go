package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

const transactionSelect = `
	SELECT t.id, t.statement_id, t.date, t.description, t.merchant, t.type, t.amount,
	       t.category_id, t.subcategory_id, COALESCE(c.name, ''), COALESCE(sc.name, ''),
	       t.payment_method_id, t.payment_method, t.bank_id, COALESCE(b.name, ''),
	       t.movement_kind, t.is_internal_transfer, t.is_card_bill_payment, t.is_investment,
	       t.is_refund, t.is_fee, t.confidence, t.notes, t.hash, t.created_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN categories sc ON sc.id = t.subcategory_id
	LEFT JOIN banks b ON b.id = t.bank_id`

func scanTransaction(r rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var typ, created string
	err := r.Scan(&t.ID, &t.StatementID, &t.Date, &t.Description, &t.Merchant, &typ, &t.Amount,
		&t.CategoryID, &t.SubcategoryID, &t.CategoryName, &t.SubcategoryName,
		&t.PaymentMethodID, &t.PaymentMethod, &t.BankID, &t.BankName,
		&t.MovementKind, &t.IsInternalTransfer, &t.IsCardBillPayment, &t.IsInvestment,
		&t.IsRefund, &t.IsFee, &t.Confidence, &t.Notes, &t.Hash, &created)
	if err != nil {
		return nil, err
	}
	t.Type = domain.Direction(typ)
	t.CreatedAt = parseTime(created)
	return &t, nil
}

// InsertTransaction stores t and returns its id. A row whose hash already
// exists yields ErrConflict.
func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	id, err := s.insertReturningID(ctx, `
		INSERT INTO transactions (
			statement_id, date, description, merchant, type, amount,
			category_id, subcategory_id, payment_method_id, payment_method, bank_id,
			movement_kind, is_internal_transfer, is_card_bill_payment, is_investment,
			is_refund, is_fee, confidence, notes, hash, created_at, search_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.StatementID, t.Date, t.Description, t.Merchant, string(t.Type), t.Amount,
		t.CategoryID, t.SubcategoryID, t.PaymentMethodID, t.PaymentMethod, t.BankID,
		t.MovementKind, boolInt(t.IsInternalTransfer), boolInt(t.IsCardBillPayment), boolInt(t.IsInvestment),
		boolInt(t.IsRefund), boolInt(t.IsFee), t.Confidence, t.Notes, t.Hash, formatTime(t.CreatedAt),
		searchText(t.Description, t.Merchant))
	if IsUniqueViolation(err) {
		return 0, fmt.Errorf("InsertTransaction: hash %s: %w", t.Hash, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("InsertTransaction: %w", err)
	}
	return id, nil
}

// searchText is the value matched by Filter.Query.
func searchText(description, merchant string) string {
	return textnorm.Fold(description + " " + merchant)
}

// backfillSearchText fills search_text for rows stored before the column
// existed.
func (s *Store) backfillSearchText(ctx context.Context) (int, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, description, merchant FROM transactions WHERE search_text = ''`)
	if err != nil {
		return 0, fmt.Errorf("backfillSearchText: %w", err)
	}
	type pending struct {
		id   int64
		text string
	}
	var todo []pending
	for rows.Next() {
		var id int64
		var description, merchant string
		if err := rows.Scan(&id, &description, &merchant); err != nil {
			rows.Close()
			return 0, fmt.Errorf("backfillSearchText: %w", err)
		}
		if text := searchText(description, merchant); text != "" {
			todo = append(todo, pending{id, text})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("backfillSearchText: %w", err)
	}
	rows.Close()

	for _, p := range todo {
		if _, err := s.ExecContext(ctx, `UPDATE transactions SET search_text = ? WHERE id = ?`, p.text, p.id); err != nil {
			return 0, fmt.Errorf("backfillSearchText: %w", err)
		}
	}
	return len(todo), nil
}

// GetTransaction returns the transaction with id and its joined names.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := scanTransaction(s.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

// UpdateTransaction replaces every editable column of t.ID. The hash and
// creation time are left untouched.
func (s *Store) UpdateTransaction(ctx context.Context, t domain.Transaction) (*domain.Transaction, error) {
	res, err := s.ExecContext(ctx, `
		UPDATE transactions SET
			statement_id = ?, date = ?, description = ?, merchant = ?, type = ?, amount = ?,
			category_id = ?, subcategory_id = ?, payment_method_id = ?, payment_method = ?, bank_id = ?,
			movement_kind = ?, is_internal_transfer = ?, is_card_bill_payment = ?, is_investment = ?,
			is_refund = ?, is_fee = ?, confidence = ?, notes = ?, search_text = ?
		WHERE id = ?`,
		t.StatementID, t.Date, t.Description, t.Merchant, string(t.Type), t.Amount,
		t.CategoryID, t.SubcategoryID, t.PaymentMethodID, t.PaymentMethod, t.BankID,
		t.MovementKind, boolInt(t.IsInternalTransfer), boolInt(t.IsCardBillPayment), boolInt(t.IsInvestment),
		boolInt(t.IsRefund), boolInt(t.IsFee), t.Confidence, t.Notes,
		searchText(t.Description, t.Merchant), t.ID)
	if err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	if affected(res) == 0 {
		return nil, ErrNotFound
	}
	return s.GetTransaction(ctx, t.ID)
}

// DeleteTransaction removes the transaction with id.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := s.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if affected(res) == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuery selects a page of transactions.
type ListQuery struct {
	Filter
	Type             domain.Direction
	IncludeTransfers bool
	Sort             string // data|valor|categoria|confianca, "-" prefix for descending
	Page             int
	PageSize         int
}

// Page is one page of a transaction listing.
type Page struct {
	Items    []domain.Transaction `json:"items"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

var sortColumns = map[string]string{
	"data":      "t.date",
	"valor":     "t.amount",
	"categoria": "c.name",
	"confianca": "t.confidence",
}

// SortClause validates a sort key and renders the ORDER BY expression.
func SortClause(sort string) (string, error) {
	if sort == "" {
		sort = "-data"
	}
	dir := "ASC"
	key := sort
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		key = sort[1:]
	}
	col, ok := sortColumns[key]
	if !ok {
		return "", fmt.Errorf("sort %q: %w", sort, ErrInvalidReference)
	}
	return col + " " + dir + ", t.id " + dir, nil
}

// ListTransactions returns the page of transactions matching q.
func (s *Store) ListTransactions(ctx context.Context, q ListQuery) (*Page, error) {
	order, err := SortClause(q.Sort)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}

	where, args := q.Filter.Where("t")
	if q.Type != "" {
		where += " AND t.type = ?"
		args = append(args, string(q.Type))
	}
	if !q.IncludeTransfers {
		where += " AND t.is_internal_transfer = 0"
	}

	page := &Page{Items: []domain.Transaction{}, Page: q.Page, PageSize: q.PageSize}
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions t WHERE `+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("ListTransactions: count: %w", err)
	}

	query := transactionSelect + ` WHERE ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := s.QueryContext(ctx, query, append(args, q.PageSize, (q.Page-1)*q.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		page.Items = append(page.Items, *t)
	}
	return page, rows.Err()
}

// TransactionsByStatement returns every transaction of a statement ordered
// by date.
func (s *Store) TransactionsByStatement(ctx context.Context, statementID int64) ([]domain.Transaction, error) {
	rows, err := s.QueryContext(ctx, transactionSelect+` WHERE t.statement_id = ? ORDER BY t.date, t.id`, statementID)
	if err != nil {
		return nil, fmt.Errorf("TransactionsByStatement: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("TransactionsByStatement: scan: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
