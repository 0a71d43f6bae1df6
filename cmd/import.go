package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importFile   string
	importTenant string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import validated history into the store",
	Long:  "Writes validations to the relational store in one transaction without indexing them. A running server picks them up when the tenant is next loaded; use validate for immediate effect.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		vs, err := readValidations(importFile, importTenant)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := st.ImportValidations(ctx, vs)
		if err != nil {
			return eris.Wrap(err, "import validations")
		}

		zap.L().Info("import complete",
			zap.Int64("imported", n),
			zap.Int("skipped", len(vs)-int(n)),
			zap.String("file", importFile),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "JSON or CSV file of validations (required)")
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant ID (overrides the file)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
