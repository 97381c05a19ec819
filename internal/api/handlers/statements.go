package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// MaxUploadSize is the largest CSV accepted by the upload endpoint.
const MaxUploadSize = 10 << 20

// BatchIngester stores an already classified batch.
type BatchIngester interface {
	IngestBatch(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// StatementImporter runs the full import pipeline for one file.
type StatementImporter interface {
	Import(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// StatementGetter loads a stored statement.
type StatementGetter interface {
	GetStatement(ctx context.Context, id int64) (*store.StatementSummary, error)
}

// StatementsHandler handles statement ingestion and upload endpoints.
type StatementsHandler struct {
	ingester      BatchIngester
	importer      StatementImporter
	publisher     jobs.Publisher
	statements    StatementGetter
	defaultUserID int64
	log           zerolog.Logger
}

// StatementsDeps wires a StatementsHandler. Publisher is optional; without
// it async uploads are rejected.
type StatementsDeps struct {
	Ingester      BatchIngester
	Importer      StatementImporter
	Publisher     jobs.Publisher
	Statements    StatementGetter
	DefaultUserID int64
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(d StatementsDeps, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		ingester:      d.Ingester,
		importer:      d.Importer,
		publisher:     d.Publisher,
		statements:    d.Statements,
		defaultUserID: d.DefaultUserID,
		log:           log,
	}
}

// Ingest handles POST /statements/ingest
func (h *StatementsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Corpo da requisição inválido")
		return
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		middleware.WriteError(w, http.StatusBadRequest, "periodStart e periodEnd são obrigatórios")
		return
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		middleware.WriteError(w, http.StatusBadRequest, "periodEnd anterior a periodStart")
		return
	}
	if req.UserID == 0 {
		req.UserID = h.defaultUserID
	}

	res, err := h.ingester.IngestBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, messages{Internal: "Erro ao gravar extrato"})
		return
	}
	h.log.Info().
		Int64("statement_id", res.StatementID).
		Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).
		Msg("Statement ingested")
	middleware.WriteJSON(w, http.StatusOK, res)
}

// uploadFailure is the 502 body of a partially classified upload.
type uploadFailure struct {
	*pipeline.Result
	Message string `json:"message"`
}

// UploadCSV handles POST /statements/upload-csv. With ?async=true the import
// runs as a background job and the response is 202 with the job id.
func (h *StatementsHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Arquivo excede 10MB")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Envie o arquivo no campo multipart \"file\"")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Envie o arquivo no campo multipart \"file\"")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		middleware.WriteError(w, http.StatusBadRequest, "Apenas arquivos .csv são aceitos")
		return
	}
	if header.Size > MaxUploadSize {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Arquivo excede 10MB")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Falha ao ler o arquivo")
		return
	}

	userID := h.defaultUserID
	if s := r.FormValue("userId"); s != "" {
		if userID, err = strconv.ParseInt(s, 10, 64); err != nil || userID <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "userId inválido")
			return
		}
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, filename, userID, data)
		return
	}

	res, err := h.importer.Import(r.Context(), pipeline.Request{Filename: filename, UserID: userID, Data: data})
	if err != nil {
		var batchErr *classify.BatchError
		if errors.As(err, &batchErr) && res != nil && res.StatementID != 0 {
			status := http.StatusBadGateway
			res.Error = http.StatusText(status)
			logFailure(r, err, status)
			middleware.WriteJSON(w, status, uploadFailure{Result: res, Message: batchErr.Err.Error()})
			return
		}
		writeServiceError(w, r, err, messages{Internal: "Erro ao importar extrato"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *StatementsHandler) enqueue(w http.ResponseWriter, r *http.Request, filename string, userID int64, data []byte) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Fila de importação indisponível")
		return
	}
	job := &jobs.ImportCSVJob{Filename: filename, UserID: userID, Data: data}
	if err := h.publisher.PublishImportCSV(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Falha ao enfileirar importação")
		return
	}
	h.log.Info().Str("job_id", job.JobID).Str("file", filename).Msg("Import job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.JobID,
		"status": string(job.Status),
	})
}

// GetStatement handles GET /statements/{id}
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.statements.GetStatement(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, messages{NotFound: "Extrato não encontrado", Internal: "Erro ao buscar extrato"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

func logFailure(r *http.Request, err error, status int) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Int("status", status).Msg("Request failed")
}
