package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/statement"
)

func newDetectCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE",
		Short: "Print the bank dialect of a statement CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := decodeFile(args[0])
			if err != nil {
				return err
			}
			dialect, err := statement.Detect(text)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(e.out, "%s\t%s\n", dialect, dialect.DisplayName())
			return err
		},
	}
}

// parseOutput is the JSON printed by the parse command.
type parseOutput struct {
	Dialect      domain.Dialect             `json:"dialect"`
	Transactions []domain.ParsedTransaction `json:"transactions"`
	Skipped      int                        `json:"skipped"`
	SkippedLines []int                      `json:"skippedLines,omitempty"`
}

func newParseCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a statement CSV and print its transactions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := decodeFile(args[0])
			if err != nil {
				return err
			}
			res, err := statement.DefaultRegistry().Parse(text)
			if err != nil {
				return err
			}
			e.log.Debug().Str("dialect", string(res.Dialect)).Int("skipped", res.Skipped).Msg("Statement parsed")
			return writeJSON(e, parseOutput{
				Dialect:      res.Dialect,
				Transactions: res.Transactions,
				Skipped:      res.Skipped,
				SkippedLines: res.SkippedLines,
			})
		},
	}
}

func decodeFile(path string) (string, error) {
	data, err := readStatement(path)
	if err != nil {
		return "", err
	}
	text, err := statement.Decode(data)
	if err != nil {
		return "", err
	}
	return statement.NormalizeNewlines(text), nil
}

func writeJSON(e *env, v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
