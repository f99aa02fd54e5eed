// Package langchain bridges langchaingo callback events into the action
// ledger. Attach a Handler to any langchaingo chain, agent, or model and
// every LLM call, tool invocation, and chain step is recorded as a
// hash-chained ledger event.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmerrifield20/ActionLedger/pkg/actionlog"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Handler implements langchaingo's callbacks.Handler. Callbacks it does not
// translate fall through to the embedded no-op handler.
type Handler struct {
	callbacks.SimpleHandler
	recorder actionlog.Recorder
}

// NewHandler wraps a Recorder (typically an *actionlog.Logger) as a
// langchaingo callback handler.
func NewHandler(recorder actionlog.Recorder) *Handler {
	return &Handler{recorder: recorder}
}

func (h *Handler) record(ctx context.Context, a actionlog.Action) {
	// Record's error policy owns failure handling; callbacks cannot
	// surface errors to langchaingo anyway.
	_, _ = h.recorder.Record(ctx, a)
}

// HandleLLMStart records the prompts sent to a completion model.
func (h *Handler) HandleLLMStart(ctx context.Context, prompts []string) {
	h.record(ctx, actionlog.Action{
		Type:  "llm_start",
		Input: strings.Join(prompts, "\n"),
	})
}

// HandleLLMGenerateContentStart records the messages sent to a chat model.
func (h *Handler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	var in strings.Builder
	for _, m := range ms {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				in.WriteString(text.Text)
				in.WriteString("\n")
			}
		}
	}
	h.record(ctx, actionlog.Action{Type: "llm_start", Input: in.String()})
}

// HandleLLMGenerateContentEnd records a chat model's response.
func (h *Handler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	var out strings.Builder
	if res != nil {
		for _, choice := range res.Choices {
			out.WriteString(choice.Content)
		}
	}
	h.record(ctx, actionlog.Action{Type: "llm_end", Output: out.String()})
}

// HandleLLMError records a model failure.
func (h *Handler) HandleLLMError(ctx context.Context, err error) {
	h.record(ctx, actionlog.Action{Type: "llm_error", Output: fmt.Sprint(err)})
}

// HandleChainStart records entry into a chain with its inputs.
func (h *Handler) HandleChainStart(ctx context.Context, inputs map[string]any) {
	h.record(ctx, actionlog.Action{Type: "chain_start", Input: fmt.Sprint(inputs)})
}

// HandleChainEnd records a chain's outputs.
func (h *Handler) HandleChainEnd(ctx context.Context, outputs map[string]any) {
	h.record(ctx, actionlog.Action{Type: "chain_end", Output: fmt.Sprint(outputs)})
}

// HandleChainError records a chain failure.
func (h *Handler) HandleChainError(ctx context.Context, err error) {
	h.record(ctx, actionlog.Action{Type: "chain_error", Output: fmt.Sprint(err)})
}

// HandleToolStart records a tool invocation.
func (h *Handler) HandleToolStart(ctx context.Context, input string) {
	h.record(ctx, actionlog.Action{Type: "tool_start", Input: input})
}

// HandleToolEnd records a tool result.
func (h *Handler) HandleToolEnd(ctx context.Context, output string) {
	h.record(ctx, actionlog.Action{Type: "tool_end", Output: output})
}

// HandleToolError records a tool failure.
func (h *Handler) HandleToolError(ctx context.Context, err error) {
	h.record(ctx, actionlog.Action{Type: "tool_error", Output: fmt.Sprint(err)})
}

// HandleAgentAction records an agent's decision to call a tool, with the
// tool's name attached so the ledger shows which capability was exercised.
func (h *Handler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	h.record(ctx, actionlog.Action{
		Type:     "agent_action",
		Input:    action.ToolInput,
		ToolName: action.Tool,
	})
}

// HandleAgentFinish records an agent run's final output.
func (h *Handler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	h.record(ctx, actionlog.Action{Type: "agent_finish", Output: fmt.Sprint(finish.ReturnValues)})
}

// HandleRetrieverStart records a retrieval query.
func (h *Handler) HandleRetrieverStart(ctx context.Context, query string) {
	h.record(ctx, actionlog.Action{Type: "retriever_start", Input: query})
}

// HandleRetrieverEnd records the documents a retriever returned.
func (h *Handler) HandleRetrieverEnd(ctx context.Context, query string, documents []schema.Document) {
	var out strings.Builder
	for i, doc := range documents {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(doc.PageContent)
	}
	h.record(ctx, actionlog.Action{Type: "retriever_end", Input: query, Output: out.String()})
}
