package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/statement"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// messages customizes the user-facing text of an error response.
type messages struct {
	NotFound string
	Conflict string
	Internal string
}

// StatusFor maps a service error to an HTTP status and a pt-BR message.
// Empty messages fall back to the error text.
func StatusFor(err error) (int, string) {
	var (
		refErr   *ingest.ReferenceError
		valErr   *ingest.ValidationError
		fmtErr   *statement.FormatError
		batchErr *classify.BatchError
	)
	switch {
	case errors.As(err, &refErr):
		return http.StatusBadRequest, refErr.Error()
	case errors.As(err, &valErr):
		return http.StatusBadRequest, valErr.Msg
	case errors.Is(err, statement.ErrUnrecognizedFormat):
		return http.StatusBadRequest, statement.ErrUnrecognizedFormat.Error()
	case errors.As(err, &fmtErr):
		return http.StatusBadRequest, fmtErr.Msg
	case errors.As(err, &batchErr):
		return http.StatusBadGateway, "Falha na classificação do lote " + strconv.Itoa(batchErr.Index) + ": " + batchErr.Err.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, ""
	case errors.Is(err, store.ErrHasChildren):
		return http.StatusConflict, "Categoria possui subcategorias"
	case errors.Is(err, store.ErrInUse):
		return http.StatusConflict, "Categoria em uso por transações"
	case errors.Is(err, store.ErrInvalidReference):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Tempo limite excedido"
	}
	return http.StatusInternalServerError, ""
}

// writeServiceError logs err and writes the mapped error response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg messages) {
	status, text := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		if msg.NotFound != "" {
			text = msg.NotFound
		}
	case http.StatusConflict:
		if msg.Conflict != "" && errors.Is(err, store.ErrConflict) {
			text = msg.Conflict
		}
	}
	if text == "" {
		text = msg.Internal
	}
	if text == "" {
		text = err.Error()
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}
	middleware.WriteError(w, status, text)
}

// pathID parses the {id} path value.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "ID inválido")
		return 0, false
	}
	return id, true
}
