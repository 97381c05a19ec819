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

const categoryColumns = `id, parent_id, name, slug, kind`

func scanCategory(r rowScanner) (*domain.Category, error) {
	var c domain.Category
	var kind string
	if err := r.Scan(&c.ID, &c.ParentID, &c.Name, &c.Slug, &kind); err != nil {
		return nil, err
	}
	c.Kind = domain.CategoryKind(kind)
	return &c, nil
}

// ListCategories returns every category ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CategoryHierarchy returns the roots with their subcategories.
func (s *Store) CategoryHierarchy(ctx context.Context) ([]domain.CategoryNode, error) {
	all, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return BuildHierarchy(all), nil
}

// BuildHierarchy groups flat categories under their roots, keeping input
// order. Children whose parent is missing are dropped.
func BuildHierarchy(all []domain.Category) []domain.CategoryNode {
	index := make(map[int64]int)
	var nodes []domain.CategoryNode
	for _, c := range all {
		if c.ParentID == nil {
			index[c.ID] = len(nodes)
			nodes = append(nodes, domain.CategoryNode{Category: c, Children: []domain.Category{}})
		}
	}
	for _, c := range all {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			nodes[i].Children = append(nodes[i].Children, c)
		}
	}
	return nodes
}

// GetCategory returns the category with id, or ErrNotFound.
func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	c, err := scanCategory(s.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCategory: %w", err)
	}
	return c, nil
}

// FindCategoryByName looks a category up by name or slug, ignoring case and
// accents. A non-nil parentID restricts the search to that parent's children;
// nil restricts it to roots.
func (s *Store) FindCategoryByName(ctx context.Context, name string, parentID *int64) (*domain.Category, error) {
	want := textnorm.Fold(name)
	if want == "" {
		return nil, ErrNotFound
	}
	all, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		c := &all[i]
		if !sameParent(c.ParentID, parentID) {
			continue
		}
		if textnorm.Fold(c.Name) == want || c.Slug == textnorm.Slug(name) {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateCategory inserts c. An empty slug is derived from the name; a
// subcategory inherits its parent's kind when none is given.
func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if err := s.prepareCategory(ctx, &c, 0); err != nil {
		return nil, fmt.Errorf("CreateCategory: %w", err)
	}
	id, err := s.insertReturningID(ctx, `
		INSERT INTO categories (parent_id, name, slug, kind) VALUES (?, ?, ?, ?)`,
		c.ParentID, c.Name, c.Slug, string(c.Kind))
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("CreateCategory: slug %q: %w", c.Slug, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("CreateCategory: insert: %w", err)
	}
	c.ID = id
	return &c, nil
}

// UpdateCategory replaces the name, slug, kind and parent of category c.ID.
func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if _, err := s.GetCategory(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.prepareCategory(ctx, &c, c.ID); err != nil {
		return nil, fmt.Errorf("UpdateCategory: %w", err)
	}
	if c.ParentID != nil {
		var children int
		if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = ?`, c.ID).Scan(&children); err != nil {
			return nil, fmt.Errorf("UpdateCategory: count children: %w", err)
		}
		if children > 0 {
			return nil, fmt.Errorf("UpdateCategory: %w", ErrHasChildren)
		}
	}
	_, err := s.ExecContext(ctx, `
		UPDATE categories SET parent_id = ?, name = ?, slug = ?, kind = ? WHERE id = ?`,
		c.ParentID, c.Name, c.Slug, string(c.Kind), c.ID)
	if IsUniqueViolation(err) {
		return nil, fmt.Errorf("UpdateCategory: slug %q: %w", c.Slug, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateCategory: %w", err)
	}
	return &c, nil
}

// prepareCategory fills defaults and validates the parent. self is the id
// being updated, or 0 on create.
func (s *Store) prepareCategory(ctx context.Context, c *domain.Category, self int64) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidReference)
	}
	c.Slug = textnorm.Slug(c.Slug)
	if c.Slug == "" {
		c.Slug = textnorm.Slug(c.Name)
	}

	if c.ParentID != nil {
		if *c.ParentID == self {
			return fmt.Errorf("category cannot be its own parent: %w", ErrInvalidReference)
		}
		parent, err := s.GetCategory(ctx, *c.ParentID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("parent %d: %w", *c.ParentID, ErrInvalidReference)
		}
		if err != nil {
			return err
		}
		if parent.ParentID != nil {
			return fmt.Errorf("parent %d is a subcategory: %w", parent.ID, ErrInvalidReference)
		}
		if c.Kind == "" {
			c.Kind = parent.Kind
		}
	}
	if c.Kind == "" {
		c.Kind = domain.KindSpend
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", c.Kind, ErrInvalidReference)
	}
	return nil
}

// DeleteCategory removes a category that has no children and no referencing
// transactions.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}

	var children int
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return fmt.Errorf("DeleteCategory: count children: %w", err)
	}
	if children > 0 {
		return ErrHasChildren
	}

	var refs int
	if err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE category_id = ? OR subcategory_id = ?`, id, id).Scan(&refs); err != nil {
		return fmt.Errorf("DeleteCategory: count transactions: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}

	if _, err := s.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	return nil
}
