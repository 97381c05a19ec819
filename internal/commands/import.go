package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-dashboard/internal/app"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
	"github.com/dvloznov/finance-dashboard/internal/rules"
)

func newImportCommand(e *env) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Run the full import pipeline against the configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				userID = e.cfg.DefaultUserID
			}
			ctx := cmd.Context()

			data, err := readStatement(args[0])
			if err != nil {
				return err
			}
			doc, err := rules.Load(e.cfg.RulesPath)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(ctx, e.cfg, doc, e.log)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := app.NewClassifier(ctx, e.cfg, doc, e.log)
			if err != nil {
				return err
			}
			im, err := app.NewImporter(ctx, e.cfg, st, c, e.log)
			if err != nil {
				return err
			}
			defer im.Close()

			res, err := im.Import(ctx, pipeline.Request{Filename: filepath.Base(args[0]), UserID: userID, Data: data})
			if res != nil {
				if werr := writeJSON(e, res); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "owner of the imported statement (defaults to DEFAULT_USER_ID)")
	return cmd
}
