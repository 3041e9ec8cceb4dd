package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/auth"
)

// NewTokenCmd constructs the `docchat token` command, which mints a bearer
// JWT for the server's protected routes.
func NewTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer JWT for the docchat server",
		Long: `Mint a signed bearer token for the server's protected routes.

The token is signed with DOCCHAT_JWT_SECRET, which must match the secret
the server was started with. Export the printed token as DOCCHAT_TOKEN
for the chat, ask, and index commands.

Examples:
  docchat token
  docchat token --subject alice --ttl 168h
  export DOCCHAT_TOKEN=$(docchat token)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("DOCCHAT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("token: DOCCHAT_JWT_SECRET is not set")
			}

			tok, err := auth.Sign(secret, subject, ttl)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}

			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "docchat-cli", "Subject claim to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
