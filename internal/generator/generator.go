// Package generator orchestrates the answer pipeline: fetch session history,
// retrieve grounding passages, assemble the prompt, call the LLM, and persist
// the new turn. Memory failures degrade gracefully — the answer is still
// returned, flagged as history-degraded. Retrieval and generation failures
// are fatal to the call and surfaced as distinct error conditions.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/memory"
	"github.com/54b3r/docqa-go/internal/rag"
)

// answerPreamble is the grounding instruction prepended to every generation
// request. The retrieved passages are appended below it.
const answerPreamble = "Answer the question based only on the following context. " +
	"If the context is empty, say I DON'T KNOW"

// Config holds the dependencies and tuning knobs for a Generator.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Retriever supplies grounding passages for each query.
	Retriever rag.Retriever

	// Memory is the optional conversation store used to persist and replay
	// prior turns. If nil, every query is stateless.
	Memory memory.ChatStore

	// TopK is the number of passages injected per query. Defaults to 5.
	TopK int

	// HistoryDepth is the number of prior turns (user+assistant pairs) to
	// inject per query. Defaults to 10.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context (preamble + passages + history + question). History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// ProviderTimeout bounds the LLM call. Defaults to 120s.
	ProviderTimeout time.Duration
}

// Generator answers questions over the ingested corpus.
type Generator struct {
	chatModel        model.ToolCallingChatModel
	retriever        rag.Retriever
	memory           memory.ChatStore
	topK             int
	historyDepth     int
	maxContextTokens int
	providerTimeout  time.Duration
}

// Options carries the per-call knobs for Generate.
type Options struct {
	// SessionID scopes conversation history. Empty means stateless.
	SessionID string
	// Rerank enables rerank-refined retrieval for this call.
	Rerank bool
	// Filter restricts retrieval by metadata. Nil means unfiltered.
	Filter *rag.Filter
}

// Result is the outcome of a Generate call.
type Result struct {
	// Answer is the generated answer text.
	Answer string
	// SessionID echoes the session the turn was recorded under, if any.
	SessionID string
	// HistoryDegraded is true when a memory read or write failed. The answer
	// is still valid but was produced without (or not recorded to) history.
	HistoryDegraded bool
}

// New constructs a Generator from the provided Config.
func New(cfg *Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("generator: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("generator: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Generator{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		memory:           cfg.Memory,
		topK:             topK,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		providerTimeout:  timeout,
	}, nil
}

// Generate runs the pipeline for one question: fetch memory, retrieve,
// assemble, generate, persist. Retrieval errors pass through with their
// classification intact; LLM failures surface as generation-unavailable.
func (g *Generator) Generate(ctx context.Context, query string, opts Options) (*Result, error) {
	log := logging.FromContext(ctx)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("generator: empty query: %w", rag.ErrInvalidInput)
	}

	res := &Result{SessionID: opts.SessionID}

	// Step 1: fetch memory. A read failure degrades — we answer without history.
	var history []memory.Message
	if opts.SessionID != "" && g.memory != nil {
		prior, err := g.memory.Recent(ctx, opts.SessionID, g.historyDepth*2)
		if err != nil {
			log.Warn("memory: failed to load history, answering without it",
				slog.String("session", opts.SessionID),
				slog.Any("error", err),
			)
			res.HistoryDegraded = true
		} else {
			history = prior
		}
	}

	// Step 2: retrieve grounding passages. Fatal on failure — the error keeps
	// the retriever's classification (index-unavailable, provider-unavailable).
	qr, err := g.retriever.Search(ctx, query, rag.SearchOptions{
		K:      g.topK,
		Rerank: opts.Rerank,
		Filter: opts.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("generator: retrieve: %w", err)
	}

	// Step 3: assemble the prompt.
	messages := g.buildMessages(ctx, query, qr.Results, history)

	// Step 4: call the LLM.
	genCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()
	out, err := g.chatModel.Generate(genCtx, messages)
	if err != nil {
		return nil, fmt.Errorf("generator: llm generate: %w: %v", rag.ErrGenerationUnavailable, err)
	}
	res.Answer = out.Content

	// Step 5: persist the turn. A write failure degrades — the answer stands.
	if opts.SessionID != "" && g.memory != nil {
		if err := g.memory.Append(ctx, opts.SessionID, memory.RoleUser, query); err != nil {
			log.Warn("memory: failed to persist user message",
				slog.String("session", opts.SessionID),
				slog.Any("error", err),
			)
			res.HistoryDegraded = true
		} else if err := g.memory.Append(ctx, opts.SessionID, memory.RoleAssistant, res.Answer); err != nil {
			log.Warn("memory: failed to persist assistant message",
				slog.String("session", opts.SessionID),
				slog.Any("error", err),
			)
			res.HistoryDegraded = true
		}
	}

	return res, nil
}

// buildMessages constructs the message slice: grounding system message,
// budget-trimmed history (oldest first), then the question.
func (g *Generator) buildMessages(ctx context.Context, query string, passages []rag.ScoredChunk, history []memory.Message) []*schema.Message {
	grounding := schema.SystemMessage(buildGroundingContext(passages))
	question := schema.UserMessage(query)

	var historyMsgs []*schema.Message
	for _, m := range history {
		switch m.Role {
		case memory.RoleUser:
			historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
		case memory.RoleAssistant:
			historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
		}
	}

	// Trim history oldest-first so the total estimated token count fits
	// within the configured context budget.
	fixed := []*schema.Message{grounding, question}
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, g.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	result := make([]*schema.Message, 0, 2+len(historyMsgs))
	result = append(result, grounding)
	result = append(result, historyMsgs...)
	result = append(result, question)
	return result
}

// buildGroundingContext formats retrieved passages into the grounding system
// message. An empty passage list yields an empty Context section, which the
// preamble instructs the model to answer with I DON'T KNOW.
func buildGroundingContext(passages []rag.ScoredChunk) string {
	var sb strings.Builder
	sb.WriteString(answerPreamble)
	sb.WriteString("\n\nContext:\n")
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
