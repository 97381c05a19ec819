package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// ReferenceStore serves the read-only reference tables.
type ReferenceStore interface {
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	GetBank(ctx context.Context, id int64) (*domain.Bank, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id int64) (*domain.PaymentMethod, error)
}

// ReferenceHandler handles bank and payment method endpoints.
type ReferenceHandler struct {
	store ReferenceStore
	log   zerolog.Logger
}

// NewReferenceHandler creates a new reference data handler.
func NewReferenceHandler(store ReferenceStore, log zerolog.Logger) *ReferenceHandler {
	return &ReferenceHandler{store: store, log: log}
}

// ListBanks handles GET /banks
func (h *ReferenceHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.store.ListBanks(r.Context())
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar bancos"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, banks)
}

// GetBank handles GET /banks/{id}
func (h *ReferenceHandler) GetBank(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bank, err := h.store.GetBank(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, messages{NotFound: "Banco não encontrado", Internal: "Erro ao buscar banco"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, bank)
}

// ListPaymentMethods handles GET /payment-methods
func (h *ReferenceHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.store.ListPaymentMethods(r.Context())
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar meios de pagamento"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, methods)
}

// GetPaymentMethod handles GET /payment-methods/{id}
func (h *ReferenceHandler) GetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pm, err := h.store.GetPaymentMethod(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, messages{NotFound: "Meio de pagamento não encontrado", Internal: "Erro ao buscar meio de pagamento"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pm)
}
