package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// GetUser returns the user with id, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	var created string
	err := s.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// EnsureUser returns the user with id, creating a placeholder row when it
// does not exist yet.
func (s *Store) EnsureUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("EnsureUser: %w", err)
	}

	now := s.now()
	placeholder := domain.User{
		ID:        id,
		Name:      fmt.Sprintf("Usuário %d", id),
		Email:     fmt.Sprintf("user%d@local", id),
		CreatedAt: now,
	}
	_, insertErr := s.ExecContext(ctx, `INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		placeholder.ID, placeholder.Name, placeholder.Email, formatTime(now))
	if insertErr != nil && !IsUniqueViolation(insertErr) {
		return nil, fmt.Errorf("EnsureUser: insert placeholder: %w", insertErr)
	}
	if err := s.syncSequence(ctx, "users"); err != nil {
		return nil, fmt.Errorf("EnsureUser: %w", err)
	}
	if insertErr != nil {
		// created concurrently
		return s.GetUser(ctx, id)
	}
	return &placeholder, nil
}
