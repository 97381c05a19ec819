package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/rules"
)

// fakeGenerator answers with respond, recording every request.
type fakeGenerator struct {
	respond  func(call int, req Request) (string, error)
	requests []Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.respond(len(f.requests)-1, req)
}

func parsedTxs(n int) []domain.ParsedTransaction {
	out := make([]domain.ParsedTransaction, n)
	for i := range out {
		amount := -float64(i+1) * 10
		out[i] = domain.ParsedTransaction{
			Date:        civil.Date{Year: 2025, Month: time.February, Day: i%28 + 1},
			Description: fmt.Sprintf("COMPRA %d", i),
			Amount:      &amount,
			Direction:   domain.DirectionSpend,
			Reference:   fmt.Sprintf("ref-%d", i),
		}
	}
	return out
}

func modelRecord(description string) map[string]any {
	return map[string]any{
		"date":                     "2025-02-01",
		"description":              description,
		"amount":                   -10.0,
		"type":                     "spend",
		"counterparty_normalized":  "Padaria",
		"payment_method":           "PIX",
		"payment_method_id":        1,
		"bank_id":                  3,
		"category_id":              200,
		"subcategory_id":           202,
		"category_label":           "Alimentação",
		"subcategory_label":        "Restaurantes",
		"movement_kind":            "spend",
		"is_internal_transfer":     0,
		"is_card_bill_payment":     0,
		"is_investment_aporte":     0,
		"is_investment_rendimento": 0,
	}
}

// echoResponse classifies every item of the batch in the request.
func echoResponse(req Request) string {
	n := batchLen(req.UserMessage)
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = modelRecord(fmt.Sprintf("item %d", i))
	}
	out, _ := json.Marshal(map[string]any{"transacoes": items})
	return string(out)
}

func batchLen(msg string) int {
	var n int
	for _, line := range strings.Split(msg, "\n") {
		if _, err := fmt.Sscanf(line, "Lote com %d itens:", &n); err == nil {
			return n
		}
	}
	return 0
}

func newTestClassifier(t *testing.T, gen Generator, cfg Config) (*Classifier, *bytes.Buffer) {
	t.Helper()
	doc, err := rules.Default()
	require.NoError(t, err)
	var buf bytes.Buffer
	c, err := New(gen, doc, cfg, zerolog.New(&buf))
	require.NoError(t, err)
	return c, &buf
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 80, nil},
		{1, 80, []int{1}},
		{80, 80, []int{80}},
		{81, 80, []int{80, 1}},
		{5, 2, []int{2, 2, 1}},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		var got []int
		for _, b := range Partition(parsedTxs(tt.n), tt.size) {
			got = append(got, len(b))
		}
		assert.Equal(t, tt.want, got, "n=%d size=%d", tt.n, tt.size)
	}
}

func TestClassify_BatchesInOrder(t *testing.T) {
	gen := &fakeGenerator{respond: func(_ int, req Request) (string, error) {
		return echoResponse(req), nil
	}}
	c, _ := newTestClassifier(t, gen, Config{BatchSize: 2})

	in := parsedTxs(5)
	out, err := c.Classify(context.Background(), domain.DialectNubank, in)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Len(t, gen.requests, 3)

	for i, tx := range out {
		// parser-owned fields come from the input, in submission order
		assert.Equal(t, in[i].Description, tx.Description)
		assert.Equal(t, in[i].Date, tx.Date)
		assert.Equal(t, *in[i].Amount, tx.Amount)
		assert.Equal(t, in[i].Reference, tx.Reference)
		assert.Equal(t, domain.BankIDNubank, tx.BankID)
		assert.Equal(t, int64(200), tx.CategoryID)
		require.NotNil(t, tx.SubcategoryID)
		assert.Equal(t, int64(202), *tx.SubcategoryID)
	}
}

func TestClassify_UserMessage(t *testing.T) {
	gen := &fakeGenerator{respond: func(_ int, req Request) (string, error) {
		return echoResponse(req), nil
	}}
	c, _ := newTestClassifier(t, gen, Config{})

	_, err := c.Classify(context.Background(), domain.DialectBradesco, parsedTxs(3))
	require.NoError(t, err)
	require.Len(t, gen.requests, 1)

	req := gen.requests[0]
	assert.Equal(t, DefaultSystemPrompt, req.SystemPrompt)
	lines := strings.Split(req.UserMessage, "\n")
	assert.Equal(t, "As regras de classificação são:", lines[0])
	assert.Contains(t, req.UserMessage, "Retorne no schema solicitado (apenas o JSON).")
	assert.Contains(t, req.UserMessage, "Lote com 3 itens:")
	assert.Contains(t, req.UserMessage, "\"categories\"")
	assert.Equal(t, "object", req.Schema["type"])
}

func TestClassify_FallbackExtraction(t *testing.T) {
	gen := &fakeGenerator{respond: func(_ int, req Request) (string, error) {
		return "Claro! Segue o resultado:\n" + echoResponse(req) + "\n", nil
	}}
	c, logs := newTestClassifier(t, gen, Config{})

	out, err := c.Classify(context.Background(), domain.DialectMercadoPago, parsedTxs(2))
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Contains(t, logs.String(), "trailing object fallback")
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestClassify_ResponseErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond func(req Request) string
		wantErr error
	}{
		{"empty", func(Request) string { return "   " }, ErrEmptyResponse},
		{"prose only", func(Request) string { return "não sei classificar" }, ErrUnparseableOutput},
		{"broken trailing object", func(Request) string { return "resultado: {transacoes: [}" }, ErrUnparseableOutput},
		{"count mismatch", func(Request) string {
			out, _ := json.Marshal(map[string]any{"transacoes": []any{modelRecord("só um")}})
			return string(out)
		}, ErrCountMismatch},
		{"missing field", func(req Request) string {
			rec := modelRecord("x")
			delete(rec, "movement_kind")
			return wrapN(req, rec)
		}, ErrSchemaViolation},
		{"extra field", func(req Request) string {
			rec := modelRecord("x")
			rec["observacoes"] = "extra"
			return wrapN(req, rec)
		}, ErrSchemaViolation},
		{"bad enum", func(req Request) string {
			rec := modelRecord("x")
			rec["movement_kind"] = "gift"
			return wrapN(req, rec)
		}, ErrSchemaViolation},
		{"bad flag", func(req Request) string {
			rec := modelRecord("x")
			rec["is_internal_transfer"] = 2
			return wrapN(req, rec)
		}, ErrSchemaViolation},
		{"wrong type", func(req Request) string {
			rec := modelRecord("x")
			rec["category_id"] = "duzentos"
			return wrapN(req, rec)
		}, ErrSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{respond: func(_ int, req Request) (string, error) {
				return tt.respond(req), nil
			}}
			c, _ := newTestClassifier(t, gen, Config{})

			out, err := c.Classify(context.Background(), domain.DialectNubank, parsedTxs(2))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, out)

			var be *BatchError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, 0, be.Index)
		})
	}
}

func wrapN(req Request, rec map[string]any) string {
	n := batchLen(req.UserMessage)
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = rec
	}
	out, _ := json.Marshal(map[string]any{"transacoes": items})
	return string(out)
}

func TestClassify_PartialResultsOnBatchFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &fakeGenerator{respond: func(call int, req Request) (string, error) {
		if call == 2 {
			return "", boom
		}
		return echoResponse(req), nil
	}}
	c, _ := newTestClassifier(t, gen, Config{BatchSize: 2})

	out, err := c.Classify(context.Background(), domain.DialectBradesco, parsedTxs(6))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 2, be.Index)
	assert.Equal(t, 4, be.Completed)
	assert.Len(t, out, 4)
}

func TestClassify_BatchTimeout(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c, _ := newTestClassifier(t, slow, Config{BatchTimeout: 20 * time.Millisecond})

	_, err := c.Classify(context.Background(), domain.DialectNubank, parsedTxs(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type generatorFunc func(ctx context.Context, req Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func TestMerge(t *testing.T) {
	mt, err := decodeRecord(0, mustJSON(t, modelRecord("COMPRA MODELO")))
	require.NoError(t, err)

	t.Run("missing parser amount uses model", func(t *testing.T) {
		in := domain.ParsedTransaction{Date: civil.Date{Year: 2025, Month: 2, Day: 3}, Description: "RENDIMENTOS", ExternalID: "abc"}
		out := merge(in, mt, domain.DialectMercadoPago)
		assert.Equal(t, -10.0, out.Amount)
		assert.Equal(t, domain.DirectionSpend, out.Type)
		assert.Equal(t, "abc", out.ExternalID)
		assert.Equal(t, "2025-02-03", out.Date.String())
		assert.Equal(t, domain.BankIDMercadoPago, out.BankID)
	})

	t.Run("missing parser date uses model", func(t *testing.T) {
		amount := 5.0
		in := domain.ParsedTransaction{Amount: &amount, Direction: domain.DirectionIncome}
		out := merge(in, mt, domain.Dialect("unknown"))
		assert.Equal(t, "2025-02-01", out.Date.String())
		assert.Equal(t, 5.0, out.Amount)
		assert.Equal(t, domain.DirectionIncome, out.Type)
		assert.Equal(t, "COMPRA MODELO", out.Description)
		// no dialect bank, keep the model's
		assert.Equal(t, int64(3), out.BankID)
	})
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestResponseSchema(t *testing.T) {
	schema := ResponseSchema()
	props := schema["properties"].(map[string]any)
	items := props["transacoes"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.Len(t, items["required"], 17)
	assert.Len(t, items["properties"], 17)
}

func TestLoadSystemPrompt(t *testing.T) {
	p, err := LoadSystemPrompt("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, p)

	_, err = LoadSystemPrompt(t.TempDir() + "/missing.txt")
	assert.Error(t, err)
}
