package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewIngestCmd constructs the `docchat ingest` command, which chunks source
// documents into the store and (by default) embeds them immediately.
func NewIngestCmd() *cobra.Command {
	var chunkSize int
	var chunkOverlap int
	var noIndex bool

	cmd := &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Chunk documents into the corpus and embed them",
		Long: `Load documents, split them into overlapping chunks, and stage the chunks
in the document store. Sources may be files, directories (walked for .md
and .txt files), or HTTP(S) URLs.

Staged chunks start with an empty embedding column; unless --no-index is
set, the indexing pipeline runs immediately afterwards and fills the
vectors in. Re-ingesting a source replaces its chunks and re-queues them
for embedding.

Examples:
  docchat ingest ./docs
  docchat ingest handbook.md https://example.com/runbook.txt
  docchat ingest --no-index ./docs   # stage only, embed later with 'docchat index'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			docs, err := openStore()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = docs.Close() }()

			loader, err := ingestion.NewLoader(docs, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create loader: %w", err)
			}

			ids, err := loader.Ingest(ctx, args, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("ingestion complete", slog.Int("chunks", len(ids)))

			if noIndex || len(ids) == 0 {
				return nil
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			mirror, err := buildMirror(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline := &indexer.Pipeline{
				Rows:     docs,
				Embedder: emb,
				Model:    embedder.ModelName(embedder.Backend()),
			}
			if mirror != nil {
				pipeline.Mirror = mirror
				defer func() { _ = mirror.Close() }()
			}

			res, err := pipeline.Process(ctx, indexer.Batch{IDs: ids})
			if err != nil {
				return fmt.Errorf("ingest: indexing staged chunks: %w", err)
			}
			log.Info("indexing complete",
				slog.Int("indexed", res.Indexed),
				slog.Int("skipped", res.Skipped),
				slog.Int("failed", res.Failed),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default: 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters of overlap between chunks (default: 100)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Stage chunks without embedding them")

	return cmd
}
