package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// CategoryStore is the category persistence used by CategoriesHandler.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CategoryHierarchy(ctx context.Context) ([]domain.CategoryNode, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

var categoryMessages = messages{
	NotFound: "Categoria não encontrada",
	Conflict: "Slug já existe",
	Internal: "Erro ao processar categoria",
}

// CategoriesHandler handles category-related endpoints.
type CategoriesHandler struct {
	store CategoryStore
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(store CategoryStore, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: store, log: log}
}

// ListCategories handles GET /categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar categorias"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, categories)
}

// Hierarchy handles GET /categories/hierarchy
func (h *CategoriesHandler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.store.CategoryHierarchy(r.Context())
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar hierarquia de categorias"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, nodes)
}

// GetCategory handles GET /categories/{id}
func (h *CategoriesHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, categoryMessages)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

// CreateCategory handles POST /categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	c.ID = 0

	created, err := h.store.CreateCategory(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, err, categoryMessages)
		return
	}
	h.log.Info().Int64("category_id", created.ID).Str("slug", created.Slug).Msg("Category created")
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateCategory handles PATCH /categories/{id}. Fields absent from the body
// keep their current value.
func (h *CategoriesHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	current, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, categoryMessages)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(current); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	current.ID = id

	updated, err := h.store.UpdateCategory(r.Context(), *current)
	if err != nil {
		writeServiceError(w, r, err, categoryMessages)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteCategory handles DELETE /categories/{id}
func (h *CategoriesHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, r, err, categoryMessages)
		return
	}
	h.log.Info().Int64("category_id", id).Msg("Category deleted")
	w.WriteHeader(http.StatusNoContent)
}
