package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

var (
	enrichName        string
	enrichDescription string
	enrichType        string
	enrichVendor      string
	enrichGTIN        string
	enrichFile        string
	enrichTenant      string
	enrichSector      string
	enrichBypass      bool
	enrichDeadline    time.Duration
	enrichConcurrency int
	enrichOutput      string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich one item from flags, or every item in a JSON or CSV file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		items, err := enrichItems()
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		ectx := model.EnrichmentContext{
			Tenant:      enrichTenant,
			Sector:      enrichSector,
			BypassCache: enrichBypass,
			Deadline:    enrichDeadline,
		}
		recs, err := env.Orchestrator.EnrichAll(ctx, items, ectx, enrichConcurrency)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		incomplete := 0
		for _, rec := range recs {
			if rec.Incomplete {
				incomplete++
			}
		}
		zap.L().Info("enrich complete",
			zap.Int("items", len(recs)),
			zap.Int("incomplete", incomplete),
		)

		out := io.Writer(os.Stdout)
		if enrichOutput != "" {
			f, err := os.Create(enrichOutput)
			if err != nil {
				return eris.Wrap(err, "create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return writeRecords(out, recs)
	},
}

// enrichItems returns the items named by the flags.
func enrichItems() ([]model.ExtractedItem, error) {
	if enrichFile != "" {
		items, err := readItems(enrichFile)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, eris.Errorf("no items in %s", enrichFile)
		}
		return items, nil
	}
	if enrichName == "" {
		return nil, eris.New("--name or --file is required")
	}
	return []model.ExtractedItem{{
		Name:        enrichName,
		Description: enrichDescription,
		Type:        model.ItemType(enrichType),
		Vendor:      enrichVendor,
		GTIN:        enrichGTIN,
	}}, nil
}

// writeRecords writes one record as an object and several as an array.
func writeRecords(w io.Writer, recs []*model.ConsensusRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(recs) == 1 {
		return enc.Encode(recs[0])
	}
	return enc.Encode(recs)
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichName, "name", "", "item name")
	f.StringVar(&enrichDescription, "description", "", "item description")
	f.StringVar(&enrichType, "type", "", "declared item type (product or service)")
	f.StringVar(&enrichVendor, "vendor", "", "caller-supplied vendor")
	f.StringVar(&enrichGTIN, "gtin", "", "caller-supplied GTIN")
	f.StringVar(&enrichFile, "file", "", "JSON or CSV file of items")
	f.StringVar(&enrichTenant, "tenant", "", "tenant ID")
	f.StringVar(&enrichSector, "sector", "", "sector code")
	f.BoolVar(&enrichBypass, "bypass-cache", false, "force live provider calls")
	f.DurationVar(&enrichDeadline, "deadline", 0, "overall deadline per item (default from config)")
	f.IntVar(&enrichConcurrency, "concurrency", 4, "items enriched in parallel")
	f.StringVar(&enrichOutput, "output", "", "write records to this file instead of stdout")
	rootCmd.AddCommand(enrichCmd)
}
