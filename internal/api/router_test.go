package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/api"
	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/dvloznov/finance-dashboard/internal/jobs/inmemory"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
	"github.com/dvloznov/finance-dashboard/internal/statement"
	"github.com/dvloznov/finance-dashboard/internal/store"
	"github.com/dvloznov/finance-dashboard/internal/store/storetest"
)

const apiKey = "test-key"

// MockImporter is a mock implementation of handlers.StatementImporter.
type MockImporter struct {
	ImportFunc func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	calls      []pipeline.Request
}

func (m *MockImporter) Import(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.calls = append(m.calls, req)
	if m.ImportFunc != nil {
		return m.ImportFunc(ctx, req)
	}
	return &pipeline.Result{StatementID: 1, Inserted: 2, Dialect: domain.DialectNubank}, nil
}

// MockPublisher records published jobs.
type MockPublisher struct {
	published []*jobs.ImportCSVJob
}

func (m *MockPublisher) PublishImportCSV(ctx context.Context, job *jobs.ImportCSVJob) error {
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

type fixture struct {
	handler   http.Handler
	store     *store.Store
	importer  *MockImporter
	publisher *MockPublisher
	jobs      *inmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New(t)
	f := &fixture{
		store:     s,
		importer:  &MockImporter{},
		publisher: &MockPublisher{},
		jobs:      inmemory.NewStore(),
	}
	f.handler = api.NewRouter(api.Deps{
		Store:         s,
		Ingester:      ingest.NewService(s, zerolog.Nop()),
		Importer:      f.importer,
		Dashboard:     dashboard.New(s),
		Publisher:     f.publisher,
		Jobs:          f.jobs,
		DefaultUserID: 1,
		APIKey:        apiKey,
		Log:           zerolog.Nop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-API-Key", apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return f.do(t, method, path, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func csvUpload(t *testing.T, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])
}

func TestAPIKeyRequired(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[middleware.ErrorBody](t, rec)
	assert.Equal(t, "Missing x-api-key header", body.Message)
}

func TestIngestAndListTransactions(t *testing.T) {
	f := newFixture(t)
	req := map[string]any{
		"userId":      1,
		"periodStart": "2024-01-01",
		"periodEnd":   "2024-01-31",
		"sourceFile":  "nubank.csv",
		"transacoes": []map[string]any{
			{"date": "2024-01-05", "description": "PADARIA", "amount": -12.5, "type": "spend",
				"payment_method_id": 6, "bank_id": 2, "category_id": 200, "subcategory_id": 201,
				"category_label": "Alimentação", "movement_kind": "spend"},
			{"date": "2024-01-07", "description": "Salário", "amount": 4000, "type": "income",
				"payment_method_id": 2, "bank_id": 2, "category_id": 1000, "subcategory_id": 1001,
				"category_label": "Renda", "movement_kind": "income"},
		},
	}

	rec := f.doJSON(t, http.MethodPost, "/statements/ingest", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ingest.Result](t, rec)
	assert.Equal(t, 2, res.Inserted)

	rec = f.doJSON(t, http.MethodPost, "/statements/ingest", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[ingest.Result](t, rec).Duplicates)

	rec = f.do(t, http.MethodGet, "/transactions?type=spend", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[store.Page](t, rec)
	assert.Equal(t, 1, page.Total)

	rec = f.do(t, http.MethodGet, "/dash/overview?from=2024-01-01&to=2024-01-31", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	o := decode[dashboard.Overview](t, rec)
	assert.InDelta(t, 4000, o.TotalEntradas, 1e-9)
	assert.InDelta(t, 12.5, o.TotalSaidas, 1e-9)

	rec = f.do(t, http.MethodGet, "/statements/"+jsonID(res.StatementID), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestUnknownBank(t *testing.T) {
	f := newFixture(t)
	rec := f.doJSON(t, http.MethodPost, "/statements/ingest", map[string]any{
		"periodStart": "2024-01-01",
		"periodEnd":   "2024-01-31",
		"bankId":      999,
		"transacoes": []map[string]any{
			{"date": "2024-01-05", "description": "PADARIA", "amount": -12.5, "type": "spend"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRejectsInvalidBatch(t *testing.T) {
	tx := map[string]any{"date": "2024-01-05", "description": "PADARIA", "amount": -12.5, "type": "spend"}
	tests := []struct {
		name    string
		userID  int
		txs     []map[string]any
		message string
	}{
		{"empty transactions", 1, []map[string]any{}, "transacoes deve conter ao menos uma transação"},
		{"missing transactions", 1, nil, "transacoes deve conter ao menos uma transação"},
		{"negative user", -1, []map[string]any{tx}, "userId inválido: -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.doJSON(t, http.MethodPost, "/statements/ingest", map[string]any{
				"userId":      tt.userID,
				"periodStart": "2024-01-01",
				"periodEnd":   "2024-01-31",
				"transacoes":  tt.txs,
			})
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decode[middleware.ErrorBody](t, rec).Message)

			rec = f.do(t, http.MethodGet, "/statements/1", nil, "")
			assert.Equal(t, http.StatusNotFound, rec.Code, "no statement row is created")
		})
	}
}

func TestIngestRejectsInvertedPeriod(t *testing.T) {
	f := newFixture(t)
	rec := f.doJSON(t, http.MethodPost, "/statements/ingest", map[string]any{
		"periodStart": "2024-02-01",
		"periodEnd":   "2024-01-31",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionCRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.doJSON(t, http.MethodPost, "/transactions", map[string]any{
		"date": "2024-03-01", "description": "Farmácia", "amount": -35.9,
		"payment_method_id": 6, "category_id": 400, "subcategory_id": 401,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Transaction](t, rec)
	assert.Equal(t, domain.DirectionSpend, created.Type)

	path := "/transactions/" + jsonID(created.ID)
	rec = f.doJSON(t, http.MethodPatch, path, map[string]any{"merchant": "Drogasil"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Transaction](t, rec)
	assert.Equal(t, "Drogasil", updated.Merchant)
	assert.InDelta(t, -35.9, updated.Amount, 1e-9, "absent fields keep their value")

	rec = f.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Transação não encontrada", decode[middleware.ErrorBody](t, rec).Message)
}

func TestListTransactionsBadParams(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"from=2024-13-01", "type=other", "sort=-nope", "page=x"} {
		rec := f.do(t, http.MethodGet, "/transactions?"+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCategories(t *testing.T) {
	f := newFixture(t)

	rec := f.doJSON(t, http.MethodPost, "/categories", map[string]any{"name": "Pets", "slug": "pets"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pets := decode[domain.Category](t, rec)

	rec = f.doJSON(t, http.MethodPost, "/categories", map[string]any{"name": "Pets 2", "slug": "pets"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Slug já existe", decode[middleware.ErrorBody](t, rec).Message)

	rec = f.doJSON(t, http.MethodPatch, "/categories/"+jsonID(pets.ID), map[string]any{"name": "Animais"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Animais", decode[domain.Category](t, rec).Name)

	rec = f.do(t, http.MethodDelete, "/categories/100", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "category with subcategories")

	rec = f.do(t, http.MethodDelete, "/categories/"+jsonID(pets.ID), nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/categories/hierarchy", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]domain.CategoryNode](t, rec))

	rec = f.do(t, http.MethodGet, "/categories/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceData(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/banks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Bank](t, rec), 11)

	rec = f.do(t, http.MethodGet, "/payment-methods/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PIX", decode[domain.PaymentMethod](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/banks/999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashSeriesRejectsGroupBy(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/dash/series?groupBy=year", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/dash/series?groupBy=month", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadCSV(t *testing.T) {
	f := newFixture(t)
	body, ct := csvUpload(t, "extrato.csv", "Data,Valor,Identificador,Descrição\n")

	rec := f.do(t, http.MethodPost, "/statements/upload-csv", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[pipeline.Result](t, rec).Inserted)
	require.Len(t, f.importer.calls, 1)
	assert.Equal(t, "extrato.csv", f.importer.calls[0].Filename)
	assert.Equal(t, int64(1), f.importer.calls[0].UserID)
}

func TestUploadCSVRejectsExtension(t *testing.T) {
	f := newFixture(t)
	body, ct := csvUpload(t, "extrato.xlsx", "x")

	rec := f.do(t, http.MethodPost, "/statements/upload-csv", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.importer.calls)
}

func TestUploadCSVMissingFile(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/statements/upload-csv", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		res  *pipeline.Result
		err  error
		want int
	}{
		{"unrecognized format", &pipeline.Result{}, statement.ErrUnrecognizedFormat, http.StatusBadRequest},
		{"first batch fails", &pipeline.Result{}, &classify.BatchError{Index: 0, Err: errors.New("quota")}, http.StatusBadGateway},
		{"internal", &pipeline.Result{}, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.importer.ImportFunc = func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
				return tt.res, tt.err
			}
			body, ct := csvUpload(t, "extrato.csv", "x")
			rec := f.do(t, http.MethodPost, "/statements/upload-csv", body, ct)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUploadCSVPartialClassification(t *testing.T) {
	f := newFixture(t)
	failed := 1
	f.importer.ImportFunc = func(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
		return &pipeline.Result{StatementID: 7, Inserted: 40, FailedBatch: &failed},
			&classify.BatchError{Index: 1, Completed: 40, Err: errors.New("timeout")}
	}
	body, ct := csvUpload(t, "extrato.csv", "x")

	rec := f.do(t, http.MethodPost, "/statements/upload-csv", body, ct)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 7, got["statementId"])
	assert.EqualValues(t, 40, got["inserted"])
	assert.EqualValues(t, 1, got["failedBatch"])
	assert.Equal(t, "timeout", got["message"])
}

func TestUploadCSVAsync(t *testing.T) {
	f := newFixture(t)
	body, ct := csvUpload(t, "extrato.csv", "conteudo")

	rec := f.do(t, http.MethodPost, "/statements/upload-csv?async=true", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-1", decode[map[string]string](t, rec)["jobId"])
	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, []byte("conteudo"), f.publisher.published[0].Data)
	assert.Empty(t, f.importer.calls)
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.jobs.SaveJob(context.Background(), &jobs.ImportCSVJob{
		JobID: "abc", Filename: "x.csv", Status: jobs.JobStatusCompleted,
	}))

	rec := f.do(t, http.MethodGet, "/jobs/abc", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x.csv", decode[jobs.ImportCSVJob](t, rec).Filename)

	rec = f.do(t, http.MethodGet, "/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs?status=completed", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])
}

func jsonID(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
