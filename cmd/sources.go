package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/enrich/provider"
)

var sourcesSector string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the declared knowledge sources and their eligibility",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		views, err := describeSources(env.Sources.Registry, sourcesSector, nil)
		if err != nil {
			return eris.Wrap(err, "sources")
		}
		formatSources(os.Stdout, views)
		return nil
	},
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesSector, "sector", "", "sector code to check eligibility for")
	rootCmd.AddCommand(sourcesCmd)
}

// sourceView is one registry row as reported by the CLI and the API.
type sourceView struct {
	provider.Descriptor
	Enabled  bool   `json:"enabled"`
	Eligible bool   `json:"eligible"`
	Breaker  string `json:"breaker,omitempty"`
}

// describeSources lists every registered provider in priority order and
// marks the ones eligible for sector.
func describeSources(reg *provider.Registry, sector string, breakers map[string]string) ([]sourceView, error) {
	eligible, err := reg.Eligible(sector)
	if err != nil {
		return nil, err
	}
	ok := make(map[string]bool, len(eligible))
	for _, p := range eligible {
		ok[p.Descriptor().Name] = true
	}

	all := reg.List()
	views := make([]sourceView, 0, len(all))
	for _, p := range all {
		d := p.Descriptor()
		views = append(views, sourceView{
			Descriptor: d,
			Enabled:    p.IsEnabled(),
			Eligible:   ok[d.Name],
			Breaker:    breakers[d.Name],
		})
	}
	return views, nil
}

func formatSources(w io.Writer, views []sourceView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRIORITY\tWEIGHT\tSECTORS\tCACHE TTL\tENABLED\tELIGIBLE")
	for _, v := range views {
		sectors := strings.Join(v.Sectors, ",")
		if v.Universal() {
			sectors = provider.UniversalSector
		}
		ttl := "default"
		switch {
		case v.CacheTTL < 0:
			ttl = "off"
		case v.CacheTTL > 0:
			ttl = v.CacheTTL.String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\t%t\t%t\n",
			v.Name, v.Priority, v.ConfidenceWeight, sectors, ttl, v.Enabled, v.Eligible)
	}
	tw.Flush() //nolint:errcheck
}
