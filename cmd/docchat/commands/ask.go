package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/embedder"
)

// NewAskCmd constructs the `docchat ask` command, which sends a single
// question to the server and streams the grounded answer to stdout.
func NewAskCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a one-shot question about your documents",
		Long: `Ask the docchat server a single question and print the streamed answer.

The question is embedded locally before being sent; the server retrieves
the most similar document chunks and answers using only their content.

Examples:
  docchat ask "how do I rotate the signing keys?"
  docchat ask --chat-id billing "what did we decide about invoicing?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := args[0]

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			vecs, err := emb.Embed(ctx, []string{question})
			if err != nil || len(vecs) != 1 {
				return fmt.Errorf("ask: embedding question: %w", err)
			}

			if chatID == "" {
				chatID = uuid.NewString()
			}

			api := newAPIClient()
			err = api.Chat(ctx, chatID, question, nil, embedder.Normalize(vecs[0]), func(tok string) {
				fmt.Print(tok)
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&chatID, "chat-id", "", "Conversation ID to continue (default: a fresh conversation)")

	return cmd
}
