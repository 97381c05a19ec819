package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-dashboard/internal/app"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
	"github.com/dvloznov/finance-dashboard/internal/report"
	"github.com/dvloznov/finance-dashboard/internal/rules"
	"github.com/dvloznov/finance-dashboard/internal/statement"
)

type classifyOptions struct {
	out    string
	xlsx   string
	post   bool
	apiURL string
	apiKey string
	userID int64
}

func newClassifyCommand(e *env) *cobra.Command {
	var opts classifyOptions

	cmd := &cobra.Command{
		Use:   "classify FILE",
		Short: "Classify a statement CSV with Gemini and write the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiKey == "" {
				opts.apiKey = e.cfg.APIKey
			}
			if opts.userID == 0 {
				opts.userID = e.cfg.DefaultUserID
			}
			return runClassify(cmd.Context(), e, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the classified JSON here instead of stdout")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "also write an XLSX workbook to this path")
	cmd.Flags().BoolVar(&opts.post, "post", false, "POST the result to <api-url>/statements/ingest")
	cmd.Flags().StringVar(&opts.apiURL, "api-url", "http://localhost:8080", "base URL of the API")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key sent as x-api-key (defaults to API_KEY)")
	cmd.Flags().Int64Var(&opts.userID, "user-id", 0, "owner of the posted statement (defaults to DEFAULT_USER_ID)")

	return cmd
}

func runClassify(ctx context.Context, e *env, path string, opts classifyOptions) error {
	data, err := readStatement(path)
	if err != nil {
		return err
	}
	doc, err := rules.Load(e.cfg.RulesPath)
	if err != nil {
		return err
	}
	c, err := app.NewClassifier(ctx, e.cfg, doc, e.log)
	if err != nil {
		return err
	}

	state := &pipeline.PipelineState{Filename: filepath.Base(path), Raw: data}
	if err := pipeline.NewPipeline(pipeline.ClassifySteps(statement.DefaultRegistry(), c)...).Execute(ctx, state); err != nil {
		return err
	}
	if state.ClassifyErr != nil {
		e.log.Warn().Err(state.ClassifyErr).
			Int("classified", len(state.Classified)).
			Msg("Classification stopped early; writing the completed batches")
	}

	req := ingestRequest(state, opts.userID)
	if err := writeClassified(e, opts.out, req); err != nil {
		return err
	}
	if opts.xlsx != "" {
		if err := writeWorkbook(opts.xlsx, state.Classified); err != nil {
			return err
		}
		e.log.Info().Str("path", opts.xlsx).Msg("Workbook written")
	}
	if opts.post {
		res, err := postIngest(ctx, http.DefaultClient, opts.apiURL, opts.apiKey, req)
		if err != nil {
			return err
		}
		e.log.Info().Int64("statement_id", res.StatementID).Int("inserted", res.Inserted).
			Int("duplicates", res.Duplicates).Msg("Statement posted")
	}
	if state.ClassifyErr != nil {
		return state.ClassifyErr
	}
	return nil
}

// ingestRequest shapes the classified records as the ingest endpoint body.
func ingestRequest(state *pipeline.PipelineState, userID int64) ingest.Request {
	start, end := pipeline.Period(state.Classified)
	req := ingest.Request{
		UserID:      userID,
		PeriodStart: start,
		PeriodEnd:   end,
		SourceFile:  state.Filename,
		Transacoes:  state.Classified,
		Skipped:     state.Skipped,
	}
	if id := state.Dialect.BankID(); id != 0 {
		req.BankID = &id
	}
	if req.Transacoes == nil {
		req.Transacoes = []domain.ClassifiedTransaction{}
	}
	return req
}

func writeClassified(e *env, path string, req ingest.Request) error {
	if path == "" {
		return writeJSON(e, req)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeWorkbook(path string, txs []domain.ClassifiedTransaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := report.WriteWorkbook(f, txs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// postIngest sends req to the ingest endpoint and decodes its result.
func postIngest(ctx context.Context, client *http.Client, apiURL, apiKey string, req ingest.Request) (*ingest.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	url := strings.TrimRight(apiURL, "/") + "/statements/ingest"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: %s: %s", url, resp.Status, strings.TrimSpace(string(data)))
	}
	var res ingest.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &res, nil
}
