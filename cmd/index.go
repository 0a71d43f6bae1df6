package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	indexTenant     string
	indexFile       string
	indexID         string
	indexCollection string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk and index catalog documents into a tenant namespace",
	Long:  "Indexes a JSON file of documents ({id, text, metadata}) or a plain-text file as one document. Re-indexing a document ID replaces its passages.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		docs, err := readDocuments(indexFile, indexID)
		if err != nil {
			return err
		}
		for i := range docs {
			if docs[i].Collection == "" {
				docs[i].Collection = indexCollection
			}
		}

		env, err := initApp(ctx, "index")
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Engine == nil {
			return eris.New("retrieval is not configured")
		}
		if cfg.Retrieval.IndexPath == "" {
			zap.L().Warn("retrieval.index_path is empty, indexed documents live only for this process")
		}

		n, err := env.Engine.UpsertDocuments(ctx, indexTenant, docs)
		if err != nil {
			return eris.Wrap(err, "index")
		}
		zap.L().Info("index complete",
			zap.String("tenant", indexTenant),
			zap.Int("documents", len(docs)),
			zap.Int("passages", n),
		)
		return nil
	},
}

func init() {
	f := indexCmd.Flags()
	f.StringVar(&indexTenant, "tenant", "", "tenant ID (required)")
	f.StringVar(&indexFile, "file", "", "JSON documents or a plain-text file (required)")
	f.StringVar(&indexID, "id", "", "document ID for a plain-text file (default: file name)")
	f.StringVar(&indexCollection, "collection", "catalog", "collection inside the tenant")
	_ = indexCmd.MarkFlagRequired("tenant")
	_ = indexCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(indexCmd)
}
