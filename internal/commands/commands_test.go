package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/app"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
)

const nubankCSV = "Data,Valor,Identificador,Descrição\n" +
	"01/02/2025,-45.90,67a1b2c3-0001,Compra no débito - Padaria\n" +
	"02/02/2025,1500.00,67a1b2c3-0002,Transferência recebida pelo Pix - FULANO\n" +
	"03/02/2025,-10.00\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "cli.db"))

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDetect(t *testing.T) {
	out, err := run(t, "detect", writeFile(t, "nu.csv", nubankCSV))
	require.NoError(t, err)
	assert.Equal(t, "nubank\tNubank\n", out)
}

func TestDetect_Unrecognized(t *testing.T) {
	_, err := run(t, "detect", writeFile(t, "x.csv", "a,b,c\n1,2,3\n"))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	out, err := run(t, "parse", writeFile(t, "nu.csv", nubankCSV))
	require.NoError(t, err)

	var got parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.DialectNubank, got.Dialect)
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, "67a1b2c3-0001", got.Transactions[0].ExternalID)
}

func TestClassify_WithoutGeminiKey(t *testing.T) {
	_, err := run(t, "classify", writeFile(t, "nu.csv", nubankCSV))
	assert.ErrorIs(t, err, app.ErrNoGeminiKey)
}

func TestImport_UnrecognizedFormat(t *testing.T) {
	out, err := run(t, "import", writeFile(t, "x.csv", "a,b,c\n"))
	assert.Error(t, err)
	assert.Contains(t, out, `"statementId"`)
}

func TestIngestRequest(t *testing.T) {
	state := &pipeline.PipelineState{
		Filename: "nu.csv",
		Dialect:  domain.DialectNubank,
		Skipped:  1,
		Classified: []domain.ClassifiedTransaction{
			{Date: civil.Date{Year: 2025, Month: 2, Day: 3}, Amount: -1},
			{Date: civil.Date{Year: 2025, Month: 2, Day: 1}, Amount: 2},
		},
	}
	req := ingestRequest(state, 7)

	assert.Equal(t, int64(7), req.UserID)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 1}, req.PeriodStart)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 3}, req.PeriodEnd)
	require.NotNil(t, req.BankID)
	assert.Equal(t, domain.BankIDNubank, *req.BankID)
	assert.Equal(t, 1, req.Skipped)
}

const err400 = `{"error":"Bad Request","message":"JSON inválido"}`

func TestPostIngest(t *testing.T) {
	var gotKey string
	var gotBody ingest.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statements/ingest", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody)) {
			http.Error(w, err400, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ingest.Result{StatementID: 3, Inserted: 2})
	}))
	defer srv.Close()

	req := ingest.Request{
		UserID:      1,
		PeriodStart: civil.Date{Year: 2025, Month: 2, Day: 1},
		PeriodEnd:   civil.Date{Year: 2025, Month: 2, Day: 3},
		SourceFile:  "nu.csv",
	}
	res, err := postIngest(context.Background(), srv.Client(), srv.URL+"/", "k", req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.StatementID)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "nu.csv", gotBody.SourceFile)
	assert.Equal(t, req.PeriodStart, gotBody.PeriodStart)
	assert.Equal(t, req.PeriodEnd, gotBody.PeriodEnd)
}

func TestPostIngest_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Unauthorized","message":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := postIngest(context.Background(), srv.Client(), srv.URL, "bad", ingest.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}
