package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/logging"
)

// NewIndexCmd constructs the `docchat index` command, which embeds pending
// corpus rows either locally or through a running server.
func NewIndexCmd() *cobra.Command {
	var ids []string
	var table string
	var contentColumn string
	var embeddingColumn string
	var remote bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed pending corpus rows",
		Long: `Run the indexing pipeline over the given row IDs. Only rows whose
embedding column is still empty are processed, so re-running a batch is
safe and cheap.

By default the pipeline runs in-process against the local store. With
--remote the batch is submitted to a running server's /v1/embed endpoint
instead (requires DOCCHAT_TOKEN).

Examples:
  docchat index --id 4f1c... --id 9a02...
  docchat index --remote --id 4f1c...
  docchat index --table documents --embedding-column embedding --id 4f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(ids) == 0 {
				return fmt.Errorf("index: at least one --id is required")
			}

			batch := indexer.Batch{
				IDs:             ids,
				Table:           table,
				ContentColumn:   contentColumn,
				EmbeddingColumn: embeddingColumn,
			}

			if remote {
				if err := newAPIClient().Embed(ctx, batch); err != nil {
					return fmt.Errorf("index: %w", err)
				}
				log.Info("batch submitted", slog.Int("ids", len(ids)))
				return nil
			}

			docs, err := openStore()
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = docs.Close() }()

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("index: failed to initialise embedder: %w", err)
			}

			mirror, err := buildMirror(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
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

			res, err := pipeline.Process(ctx, batch)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			log.Info("indexing complete",
				slog.Int("indexed", res.Indexed),
				slog.Int("skipped", res.Skipped),
				slog.Int("failed", res.Failed),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&ids, "id", nil, "Row ID to index (repeatable)")
	cmd.Flags().StringVar(&table, "table", "", "Corpus table holding the rows (default: documents)")
	cmd.Flags().StringVar(&contentColumn, "content-column", "", "Column holding the chunk text (default: content)")
	cmd.Flags().StringVar(&embeddingColumn, "embedding-column", "", "Column receiving the vector (default: embedding)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Submit the batch to a running server instead of indexing locally")

	return cmd
}
