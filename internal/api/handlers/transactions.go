package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// TransactionStore is the transaction persistence used by TransactionsHandler.
type TransactionStore interface {
	ListTransactions(ctx context.Context, q store.ListQuery) (*store.Page, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

// TransactionCreator stores manual entries.
type TransactionCreator interface {
	CreateTransaction(ctx context.Context, ct domain.ClassifiedTransaction) (*domain.Transaction, error)
}

var transactionMessages = messages{
	NotFound: "Transação não encontrada",
	Conflict: "Transação duplicada",
	Internal: "Erro ao processar transação",
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store   TransactionStore
	creator TransactionCreator
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store TransactionStore, creator TransactionCreator, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: store, creator: creator, log: log}
}

// ListTransactions handles GET /transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.store.ListTransactions(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao buscar transações"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

func parseListQuery(r *http.Request) (store.ListQuery, error) {
	v := r.URL.Query()
	f, err := dashboard.ParseFilters(v)
	if err != nil {
		return store.ListQuery{}, err
	}
	q := store.ListQuery{Filter: f, Sort: v.Get("sort")}

	if s := v.Get("page"); s != "" {
		if q.Page, err = strconv.Atoi(s); err != nil {
			return q, errInvalidParam("page", s)
		}
	}
	if s := v.Get("pageSize"); s != "" {
		if q.PageSize, err = strconv.Atoi(s); err != nil {
			return q, errInvalidParam("pageSize", s)
		}
	}
	if s := v.Get("type"); s != "" {
		q.Type = domain.Direction(s)
		if !q.Type.Valid() {
			return q, errInvalidParam("type", s)
		}
	}
	if s := v.Get("includeTransfers"); s != "" {
		if q.IncludeTransfers, err = strconv.ParseBool(s); err != nil {
			return q, errInvalidParam("includeTransfers", s)
		}
	}
	if _, err := store.SortClause(q.Sort); err != nil {
		return q, errInvalidParam("sort", q.Sort)
	}
	return q, nil
}

// GetTransaction handles GET /transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, transactionMessages)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// CreateTransaction handles POST /transactions. The body has the shape of a
// classified record; flags and references are derived as for an upload.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var ct domain.ClassifiedTransaction
	if err := json.NewDecoder(r.Body).Decode(&ct); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	if ct.Date.IsZero() || ct.Description == "" {
		middleware.WriteError(w, http.StatusBadRequest, "date e description são obrigatórios")
		return
	}
	t, err := h.creator.CreateTransaction(r.Context(), ct)
	if err != nil {
		writeServiceError(w, r, err, transactionMessages)
		return
	}
	h.log.Info().Int64("transaction_id", t.ID).Msg("Manual transaction created")
	middleware.WriteJSON(w, http.StatusCreated, t)
}

// UpdateTransaction handles PATCH /transactions/{id}. Fields absent from the
// body keep their current value; the hash never changes.
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	current, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, transactionMessages)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(current); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	current.ID = id
	if !current.Type.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "type deve ser income ou spend")
		return
	}

	updated, err := h.store.UpdateTransaction(r.Context(), *current)
	if err != nil {
		writeServiceError(w, r, err, transactionMessages)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteTransaction(r.Context(), id); err != nil {
		writeServiceError(w, r, err, transactionMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidParamError struct {
	name, value string
}

func (e invalidParamError) Error() string {
	return "parâmetro " + e.name + " inválido: " + strconv.Quote(e.value)
}

func errInvalidParam(name, value string) error {
	return invalidParamError{name: name, value: value}
}
