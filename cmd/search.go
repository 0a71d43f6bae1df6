package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/retrieval"
)

var (
	searchTenant     string
	searchQuery      string
	searchLimit      int
	searchMin        float64
	searchDense      bool
	searchAlpha      float64
	searchExpansion  string
	searchAdaptive   bool
	searchCollection string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a hybrid search over a tenant namespace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Engine == nil {
			return eris.New("retrieval is not configured")
		}

		hits, err := env.Engine.Search(ctx, searchTenant, searchQuery, retrieval.Options{
			Limit:             searchLimit,
			MinSimilarity:     searchMin,
			Hybrid:            !searchDense,
			Alpha:             retrieval.WithAlpha(searchAlpha),
			Expansion:         searchExpansion,
			AdaptiveThreshold: searchAdaptive,
			Collection:        searchCollection,
		})
		if err != nil {
			return eris.Wrap(err, "search")
		}
		if len(hits) == 0 {
			fmt.Fprintln(os.Stderr, "No results.")
			return nil
		}
		formatResults(os.Stdout, hits)
		return nil
	},
}

func formatResults(w io.Writer, hits []retrieval.SearchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tSCORE\tPASSAGE")
	for i, h := range hits {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", i+1, h.ID, h.Score, snippet(h.Passage, 60))
	}
	tw.Flush() //nolint:errcheck
}

// snippet flattens whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	def := retrieval.DefaultOptions()
	f := searchCmd.Flags()
	f.StringVar(&searchTenant, "tenant", "", "tenant ID (required)")
	f.StringVar(&searchQuery, "query", "", "query text (required)")
	f.IntVar(&searchLimit, "limit", def.Limit, "maximum results")
	f.Float64Var(&searchMin, "min-similarity", 0, "drop results scoring below this")
	f.BoolVar(&searchDense, "dense", false, "dense-only scoring (no BM25)")
	f.Float64Var(&searchAlpha, "alpha", retrieval.DefaultAlpha, "dense weight in hybrid fusion")
	f.StringVar(&searchExpansion, "expansion", "", "query expansion: hyde or multi_query")
	f.BoolVar(&searchAdaptive, "adaptive", false, "cut results at the score elbow")
	f.StringVar(&searchCollection, "collection", def.Collection, "collection inside the tenant")
	_ = searchCmd.MarkFlagRequired("tenant")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}
