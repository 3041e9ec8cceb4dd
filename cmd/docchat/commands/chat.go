package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/tui"
)

// NewChatCmd constructs the `docchat chat` command, which opens the
// interactive terminal chat client.
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat client",
		Long: `Open the interactive terminal chat client.

Questions are embedded locally and answered by the docchat server using
only the content of the indexed documents. The embedder warms up in the
background; input is accepted once it is ready.

Required environment variables:
  DOCCHAT_SERVER_URL   Server base URL (default: http://127.0.0.1:8080)
  DOCCHAT_TOKEN        Bearer JWT for the server (mint with 'docchat token')

Examples:
  docchat chat
  DOCCHAT_SERVER_URL=https://docs.example.com docchat chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			handle := newEmbedderHandle()
			handle.Warm()

			model := tui.New(handle, newAPIClient())
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		},
	}
}
