// Package tui implements the interactive docchat client as a Bubble Tea
// application: a scrolling message list, a text input, and a spinner shown
// while the first answer token is in flight. The local embedder warms up in
// the background; submission stays disabled until it is ready.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/54b3r/docchat-go/internal/client"
	"github.com/54b3r/docchat-go/internal/embedder"
)

// chatMessage is one rendered turn in the conversation.
type chatMessage struct {
	id      string
	role    string
	content string
}

// Messages delivered by the background streaming goroutine.
type (
	// embedderReadyMsg reports the outcome of the background warm-up.
	embedderReadyMsg struct{ err error }
	// tokenMsg carries one streamed answer chunk.
	tokenMsg string
	// streamDoneMsg signals clean stream completion.
	streamDoneMsg struct{}
	// streamErrMsg carries a stream failure.
	streamErrMsg struct{ err error }
)

// Model is the Bubble Tea model for the chat client.
type Model struct {
	handle *client.EmbedderHandle
	api    *client.Client
	chatID string

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model

	messages  []chatMessage
	tokens    chan tea.Msg
	streaming bool
	awaiting  bool // streaming but no token received yet
	sized     bool
	status    string
}

// New creates the chat model. handle provides the lazily initialized local
// embedder; api carries the server URL and bearer token.
func New(handle *client.EmbedderHandle, api *client.Client) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Preparing embedder..."
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		handle:   handle,
		api:      api,
		chatID:   uuid.NewString(),
		input:    ti,
		viewport: viewport.New(0, 0),
		spin:     sp,
		status:   "Starting up.",
	}
}

// Init starts the cursor blink, the spinner, and the embedder warm-up.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.warmEmbedder())
}

// warmEmbedder initializes the local embedder off the UI goroutine.
func (m Model) warmEmbedder() tea.Cmd {
	return func() tea.Msg {
		_, err := m.handle.Get()
		return embedderReadyMsg{err: err}
	}
}

// Update handles key, window, and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.sized = true
		_, vh := chatBoxStyle.GetFrameSize()
		reserved := 4 + vh // header + input + status + spacer
		h := msg.Height - reserved
		if h < 3 {
			h = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = h
		m.viewport.SetContent(m.renderMessages())
		return m, nil

	case embedderReadyMsg:
		if msg.err != nil {
			m.status = "Embedder failed: " + msg.err.Error()
		} else {
			m.status = "Ready. Ask a question."
			m.input.Placeholder = "Ask a question about your documents"
		}
		return m, nil

	case tokenMsg:
		m.awaiting = false
		m.appendToAssistant(string(msg))
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, m.nextToken()

	case streamDoneMsg:
		m.streaming = false
		m.awaiting = false
		m.status = "Ready. Ask a question."
		return m, nil

	case streamErrMsg:
		m.streaming = false
		m.awaiting = false
		m.status = "Error: " + msg.err.Error()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input if the client is in a state to do so.
// Submission is a no-op while the embedder is warming up, while a stream is
// already in flight, or when no session token is available.
func (m Model) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" || m.streaming || !m.handle.Ready() {
		return m, nil
	}
	if m.api.Token == "" {
		// No session. Drop the submission without feedback, matching the
		// unauthenticated browser behavior.
		return m, nil
	}

	history := make([]client.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		history = append(history, client.Message{Role: msg.role, Content: msg.content})
	}

	m.messages = append(m.messages,
		chatMessage{id: uuid.NewString(), role: "user", content: question},
		chatMessage{id: uuid.NewString(), role: "assistant"},
	)
	m.input.Reset()
	m.streaming = true
	m.awaiting = true
	m.status = "Thinking..."
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()

	return m, tea.Batch(m.startStream(question, history), m.spin.Tick)
}

// startStream embeds the question locally and opens the server stream in a
// background goroutine, forwarding events through the token channel.
func (m *Model) startStream(question string, history []client.Message) tea.Cmd {
	ch := make(chan tea.Msg, 32)
	m.tokens = ch

	handle, api, chatID := m.handle, m.api, m.chatID
	go func() {
		defer close(ch)

		emb, err := handle.Get()
		if err != nil {
			ch <- streamErrMsg{err: err}
			return
		}
		vecs, err := emb.Embed(context.Background(), []string{question})
		if err != nil || len(vecs) != 1 {
			ch <- streamErrMsg{err: fmt.Errorf("embed question: %w", err)}
			return
		}

		err = api.Chat(context.Background(), chatID, question, history,
			embedder.Normalize(vecs[0]),
			func(tok string) { ch <- tokenMsg(tok) },
		)
		if err != nil {
			ch <- streamErrMsg{err: err}
			return
		}
		ch <- streamDoneMsg{}
	}()

	return m.nextToken()
}

// nextToken waits for the next event from the streaming goroutine.
func (m Model) nextToken() tea.Cmd {
	ch := m.tokens
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamDoneMsg{}
		}
		return msg
	}
}

// appendToAssistant appends a chunk to the content of the newest assistant
// message.
func (m *Model) appendToAssistant(chunk string) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role == "assistant" {
			m.messages[i].content += chunk
			return
		}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.sized {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := m.input.View()
	status := statusStyle.Render(m.status)
	if m.awaiting {
		status = m.spin.View() + " " + status
	}
	return header + "\n" + chat + "\n" + input + "\n" + status
}

// renderMessages formats the conversation, or the empty-state placeholder.
func (m Model) renderMessages() string {
	if len(m.messages) == 0 {
		return emptyStyle.Render("Ask a question and answers grounded in your documents will appear here.")
	}
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(userStyle.Render("You: ") + msg.content)
		case "assistant":
			content := msg.content
			if content == "" && m.awaiting {
				content = m.spin.View()
			}
			sb.WriteString(assistantStyle.Render("docchat: ") + content)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	emptyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
