// Package orchestrator implements the retrieval-grounded chat flow: match the
// query embedding against the document corpus, build a system prompt that
// confines the model to the retrieved chunks, and stream the model's answer
// token by token to the caller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// Refusal is the exact sentence the model is instructed to reply with when
// the retrieved documents cannot answer the question. Clients may match on it.
const Refusal = "Sorry, I couldn't find any information on that."

// noDocuments is substituted into the prompt when retrieval returns nothing,
// so the model sees an explicit empty corpus rather than a blank section.
const noDocuments = "No documents found"

// ErrRetrieval wraps document matching failures. These occur before any model
// output is produced, so callers can still return a structured error response.
var ErrRetrieval = errors.New("orchestrator: document retrieval failed")

// systemPromptPrefix confines the model to the injected documents. The
// wording is strict on purpose: the model must refuse rather than improvise
// when the documents do not cover the question.
const systemPromptPrefix = `You're an AI assistant who answers questions about documents.

You're a chat bot, so keep your replies succinct.

You're only allowed to use the documents below to answer the question.

If the question isn't related to these documents, say:
"` + Refusal + `"

If the information isn't available in the below documents, say:
"` + Refusal + `"

Do not go off topic.

Documents:
`

// ConversationHistory persists chat turns and replays them on later requests.
// Satisfied by *store.DocumentStore. May be nil for stateless operation.
type ConversationHistory interface {
	// AppendMessage persists a single conversation turn.
	AppendMessage(ctx context.Context, chatID string, role store.Role, content string) error
	// RecentMessages returns the most recent n messages, oldest-first.
	RecentMessages(ctx context.Context, chatID string, n int) ([]store.Message, error)
}

// Config holds the dependencies required to construct an Orchestrator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Searcher matches query embeddings against the indexed corpus.
	Searcher rag.Searcher
	// History is the optional conversation store. If nil, only the turns
	// carried in the request itself are replayed.
	History ConversationHistory
	// Threshold is the minimum cosine similarity for a chunk to be
	// injected. Defaults to rag.DefaultThreshold if zero.
	Threshold float32
	// Limit caps the injected chunks per query. Defaults to
	// rag.DefaultLimit if zero.
	Limit int
	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// replay per query. Defaults to 10 if zero.
	HistoryDepth int
	// MaxContextTokens is the estimated token budget for the full input
	// context. History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// ChatRequest is a single question plus the context needed to answer it.
type ChatRequest struct {
	// ChatID identifies the conversation.
	ChatID string
	// Message is the user's question.
	Message string
	// Messages holds prior turns supplied by the client. When non-empty
	// they take precedence over the server-side history store.
	Messages []*schema.Message
	// Embedding is the client-computed, unit-normalized query vector.
	Embedding []float32
}

// Orchestrator answers questions grounded in retrieved document chunks.
type Orchestrator struct {
	chatModel        model.BaseChatModel
	searcher         rag.Searcher
	history          ConversationHistory
	threshold        float32
	limit            int
	historyDepth     int
	maxContextTokens int
}

// New constructs an Orchestrator from the provided Config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("orchestrator: ChatModel must not be nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("orchestrator: Searcher must not be nil")
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = rag.DefaultThreshold
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = rag.DefaultLimit
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Orchestrator{
		chatModel:        cfg.ChatModel,
		searcher:         cfg.Searcher,
		history:          cfg.History,
		threshold:        threshold,
		limit:            limit,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Chat retrieves the chunks matching the request embedding, streams the
// model's grounded answer to w, and persists the turn. Retrieval failures
// are reported as ErrRetrieval before anything is written to w; once
// streaming has begun, errors may surface after partial output.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest, w io.Writer) error {
	log := logging.FromContext(ctx)

	docs, err := o.searcher.Match(ctx, req.Embedding, o.threshold, o.limit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	log.Debug("matched documents", slog.Int("count", len(docs)), slog.String("chat_id", req.ChatID))

	messages := o.buildMessages(ctx, req, docs)

	sr, err := o.chatModel.Stream(ctx, messages,
		model.WithTemperature(0),
		model.WithMaxTokens(1024),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: stream failed: %w", err)
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("orchestrator: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		answer.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return fmt.Errorf("orchestrator: write error: %w", err)
		}
	}

	// Persist the turn (non-fatal on error).
	if o.history != nil && req.ChatID != "" {
		if err := o.history.AppendMessage(ctx, req.ChatID, store.RoleUser, req.Message); err != nil {
			log.Warn("history: failed to persist user message", slog.Any("error", err))
		}
		if err := o.history.AppendMessage(ctx, req.ChatID, store.RoleAssistant, answer.String()); err != nil {
			log.Warn("history: failed to persist assistant message", slog.Any("error", err))
		}
	}
	return nil
}

// buildMessages assembles [system(docs), ...history, user(question)], with
// history trimmed oldest-first to fit the context budget.
func (o *Orchestrator) buildMessages(ctx context.Context, req ChatRequest, docs []rag.Document) []*schema.Message {
	system := schema.SystemMessage(systemPromptPrefix + injectDocuments(docs))
	user := schema.UserMessage(req.Message)

	history := req.Messages
	if len(history) == 0 && o.history != nil && req.ChatID != "" {
		prior, err := o.history.RecentMessages(ctx, req.ChatID, o.historyDepth*2)
		if err != nil {
			logging.FromContext(ctx).Warn("history: failed to load prior messages", slog.Any("error", err))
		} else {
			for _, m := range prior {
				switch m.Role {
				case store.RoleUser:
					history = append(history, schema.UserMessage(m.Content))
				case store.RoleAssistant:
					history = append(history, schema.AssistantMessage(m.Content, nil))
				}
			}
		}
	}

	fixed := []*schema.Message{system, user}
	before := len(history)
	history = budget.TrimHistory(fixed, history, o.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
		)
	}

	result := make([]*schema.Message, 0, len(history)+2)
	result = append(result, system)
	result = append(result, history...)
	result = append(result, user)
	return result
}

// injectDocuments joins the matched chunk contents for prompt injection,
// best match first.
func injectDocuments(docs []rag.Document) string {
	if len(docs) == 0 {
		return noDocuments
	}
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	return strings.Join(contents, "\n\n")
}
