package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/orchestrator"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/server"
	"github.com/54b3r/docchat-go/internal/tracing"
)

// NewServeCmd constructs the `docchat serve` command, which starts the
// retrieval and indexing HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat HTTP server",
		Long: `Start the docchat HTTP server on localhost.

The server exposes POST /v1/chat (SSE-streamed grounded answers) and
POST /v1/embed (the indexing pipeline), both protected by bearer JWTs
signed with DOCCHAT_JWT_SECRET.

Examples:
  docchat serve
  docchat serve --port 9090
  MODEL_PROVIDER=openai docchat serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised")

			docs, err := openStore()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = docs.Close() }()

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			mirror, err := buildMirror(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// The store is the authoritative searcher; when Qdrant is
			// configured the mirror serves search instead.
			var searcher rag.Searcher = docs
			pingers := []server.Pinger{server.NewStorePinger(docs)}
			if mirror != nil {
				searcher = mirror
				pingers = append(pingers, server.NewQdrantPinger(mirror.Client()))
				defer func() { _ = mirror.Close() }()
			}

			orch, err := orchestrator.New(&orchestrator.Config{
				ChatModel: chatModel,
				Searcher:  searcher,
				History:   docs,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise orchestrator: %w", err)
			}

			pipeline := &indexer.Pipeline{
				Rows:     docs,
				Embedder: emb,
				Model:    embedder.ModelName(embedder.Backend()),
			}
			if mirror != nil {
				pipeline.Mirror = mirror
			}

			secret := os.Getenv("DOCCHAT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("serve: DOCCHAT_JWT_SECRET is not set")
			}

			srv, err := server.New(orch, pipeline, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				JWTSecret: secret,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
