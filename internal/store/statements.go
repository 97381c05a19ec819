package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// StatementSummary is a statement with the number of transactions linked to it.
type StatementSummary struct {
	domain.Statement
	TransactionCount int `json:"transactionCount"`
}

// CreateStatement inserts a statement row and returns it with its id.
func (s *Store) CreateStatement(ctx context.Context, st domain.Statement) (*domain.Statement, error) {
	st.CreatedAt = s.now()
	id, err := s.insertReturningID(ctx, `
		INSERT INTO statements (user_id, period_start, period_end, source_file, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.UserID, st.PeriodStart, st.PeriodEnd, st.SourceFile, formatTime(st.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}
	st.ID = id
	return &st, nil
}

// GetStatement returns the statement with id and its transaction count.
func (s *Store) GetStatement(ctx context.Context, id int64) (*StatementSummary, error) {
	var out StatementSummary
	var created string
	err := s.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, s.period_start, s.period_end, s.source_file, s.created_at,
		       (SELECT COUNT(*) FROM transactions t WHERE t.statement_id = s.id)
		FROM statements s
		WHERE s.id = ?`, id).
		Scan(&out.ID, &out.UserID, &out.PeriodStart, &out.PeriodEnd, &out.SourceFile, &created, &out.TransactionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	out.CreatedAt = parseTime(created)
	return &out, nil
}
