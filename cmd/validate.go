package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

var (
	validateTenant     string
	validateName       string
	validateDesc       string
	validateType       string
	validateFields     map[string]string
	validateConfidence float64
	validateBy         string
	validateFile       string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Record validated corrections into company history",
	Long:  "Persists each validation and indexes it into the tenant's history namespace before returning, so the next enrichment for the tenant sees it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		vs, err := validations()
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "validate")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Sources.History == nil || !env.Sources.History.IsEnabled() {
			return eris.New("company history is not configured")
		}

		for i := range vs {
			if err := env.Sources.History.Record(ctx, &vs[i]); err != nil {
				return eris.Wrapf(err, "validation %d (%s)", i, vs[i].ItemName)
			}
		}
		zap.L().Info("validations recorded", zap.Int("count", len(vs)))
		return nil
	},
}

func validations() ([]model.Validation, error) {
	if validateFile != "" {
		vs, err := readValidations(validateFile, validateTenant)
		if err != nil {
			return nil, err
		}
		if len(vs) == 0 {
			return nil, eris.Errorf("no validations in %s", validateFile)
		}
		return vs, nil
	}
	if validateTenant == "" || validateName == "" || len(validateFields) == 0 {
		return nil, eris.New("--tenant, --name and at least one --field are required without --file")
	}
	fields := make(map[string]any, len(validateFields))
	for k, v := range validateFields {
		fields[k] = v
	}
	return []model.Validation{{
		Tenant:      validateTenant,
		ItemName:    validateName,
		Description: validateDesc,
		ItemType:    model.ItemType(validateType),
		Fields:      fields,
		Confidence:  validateConfidence,
		ValidatedBy: validateBy,
	}}, nil
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateTenant, "tenant", "", "tenant ID (overrides the file)")
	f.StringVar(&validateName, "name", "", "validated item name")
	f.StringVar(&validateDesc, "description", "", "item description")
	f.StringVar(&validateType, "type", "", "item type (product or service)")
	f.StringToStringVar(&validateFields, "field", nil, "validated field, repeatable (category=Productivity Software)")
	f.Float64Var(&validateConfidence, "confidence", 1.0, "validation confidence")
	f.StringVar(&validateBy, "by", "", "who validated the correction")
	f.StringVar(&validateFile, "file", "", "JSON or CSV file of validations")
	rootCmd.AddCommand(validateCmd)
}
