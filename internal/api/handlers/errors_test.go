package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/statement"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"reference", fmt.Errorf("ingest: %w", &ingest.ReferenceError{Field: "bankId", ID: 9}), http.StatusBadRequest},
		{"validation", fmt.Errorf("ingest: %w", &ingest.ValidationError{Msg: "userId inválido: -1"}), http.StatusBadRequest},
		{"unrecognized format", fmt.Errorf("step: %w", statement.ErrUnrecognizedFormat), http.StatusBadRequest},
		{"format", &statement.FormatError{Msg: "Nenhuma transação encontrada no CSV."}, http.StatusBadRequest},
		{"batch", &classify.BatchError{Index: 0, Err: errors.New("quota")}, http.StatusBadGateway},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{"job not found", jobs.ErrJobNotFound, http.StatusNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"has children", store.ErrHasChildren, http.StatusConflict},
		{"in use", store.ErrInUse, http.StatusConflict},
		{"invalid reference", store.ErrInvalidReference, http.StatusBadRequest},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
