package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// Aggregator computes the dashboard views.
type Aggregator interface {
	Overview(ctx context.Context, f store.Filter) (*dashboard.Overview, error)
	ByCategory(ctx context.Context, f store.Filter) ([]dashboard.CategoryTotal, error)
	TopSubcategories(ctx context.Context, f store.Filter) ([]dashboard.SubcategoryTotal, error)
	Series(ctx context.Context, f store.Filter, g dashboard.GroupBy) (*dashboard.Series, error)
}

// DashboardHandler handles the /dash endpoints.
type DashboardHandler struct {
	agg Aggregator
	log zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(agg Aggregator, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{agg: agg, log: log}
}

func (h *DashboardHandler) filters(w http.ResponseWriter, r *http.Request) (store.Filter, bool) {
	f, err := dashboard.ParseFilters(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return f, false
	}
	return f, true
}

// Overview handles GET /dash/overview
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filters(w, r)
	if !ok {
		return
	}
	o, err := h.agg.Overview(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao calcular visão geral"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, o)
}

// ByCategory handles GET /dash/by-category
func (h *DashboardHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filters(w, r)
	if !ok {
		return
	}
	rows, err := h.agg.ByCategory(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao agrupar por categoria"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rows)
}

// TopSubcategories handles GET /dash/top-subcategories
func (h *DashboardHandler) TopSubcategories(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filters(w, r)
	if !ok {
		return
	}
	rows, err := h.agg.TopSubcategories(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar subcategorias"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rows)
}

// Series handles GET /dash/series
func (h *DashboardHandler) Series(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filters(w, r)
	if !ok {
		return
	}
	g, err := dashboard.ParseGroupBy(r.URL.Query().Get("groupBy"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.agg.Series(r.Context(), f, g)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao montar série"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}
