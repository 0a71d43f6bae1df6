package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect persisted consensus records",
	Long:  "Commands for listing, viewing, and summarizing the consensus audit trail.",
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List consensus records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		tenant, _ := cmd.Flags().GetString("tenant")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ConsensusFilter{Tenant: tenant, Limit: limit}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}
		recs, err := st.ListConsensus(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No consensus records found.")
			return nil
		}

		formatConsensusList(os.Stdout, recs)
		return nil
	},
}

// -- audit show --

var auditShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show a consensus record with its provider trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		rec, err := st.GetConsensus(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audit show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- audit stats --

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show provider and fusion statistics over a time window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours <= 0 {
			hours = 24
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "audit stats")
		}
		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	auditListCmd.Flags().String("tenant", "", "filter by tenant")
	auditListCmd.Flags().Duration("since", 0, "only records newer than this (e.g. 24h)")
	auditListCmd.Flags().Int("limit", 50, "max number of records to display")

	auditStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditStatsCmd)
	rootCmd.AddCommand(auditCmd)
}

// formatConsensusList writes a tabular list of consensus records to out.
func formatConsensusList(out io.Writer, recs []model.ConsensusRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTENANT\tITEM\tCATEGORY\tSOURCE\tFIELDS\tINCOMPLETE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t--------\t------\t------\t----------\t-------")

	for _, rec := range recs {
		item := rec.Item.Name
		if len(item) > 30 {
			item = item[:27] + "..."
		}
		category, source := "", ""
		if d, ok := rec.Fields[model.FieldCategory]; ok {
			category = fmt.Sprint(d.Value)
			source = d.Source
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			truncateID(rec.ID),
			rec.Tenant,
			item,
			category,
			source,
			len(rec.Fields),
			rec.Incomplete,
			rec.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatSnapshot writes aggregate stats to out.
func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Consensus records:\t%d\n", s.ConsensusTotal)
	_, _ = fmt.Fprintf(w, "Incomplete:\t%d (%.1f%%)\n", s.ConsensusIncomplete, s.IncompleteRate*100)
	_, _ = fmt.Fprintf(w, "Avg fields:\t%.1f\n", s.AvgFields)
	_, _ = fmt.Fprintf(w, "Provider calls:\t%d\n", s.ProviderCalls)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d (%.1f%%)\n", s.ProviderFailures, s.ProviderFailRate*100)
	_, _ = fmt.Fprintf(w, "  Skipped:\t%d\n", s.ProviderSkipped)
	_, _ = fmt.Fprintf(w, "  Cache hits:\t%d\n", s.CacheHits)
	for _, name := range sortedKeys(s.FieldsBySource) {
		_, _ = fmt.Fprintf(w, "Fields won by %s:\t%d\n", name, s.FieldsBySource[name])
	}
	for _, name := range sortedKeys(s.FailuresBySource) {
		_, _ = fmt.Fprintf(w, "Failures of %s:\t%d\n", name, s.FailuresBySource[name])
	}
	_ = w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
