// Package actionlog is the framework-agnostic action logger all framework
// adapters build on. It binds a ledger client to one agent identity, hashes
// raw payloads locally, and applies an injectable error policy so a ledger
// outage never has to break the host application's agent loop.
package actionlog

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/ActionLedger/pkg/client"
	"go.uber.org/zap"
)

// Action is one agent action to record. Input and Output carry the raw
// values; they are hashed locally and never transmitted. A nil Input or
// Output is recorded as the absent-content sentinel.
type Action struct {
	Type          string
	Input         any
	Output        any
	ToolName      string
	ModelVersion  string
	PromptVersion string
}

// Recorder is the single narrow capability framework adapters depend on.
// Logger implements it; tests substitute fakes.
type Recorder interface {
	Record(ctx context.Context, a Action) (*client.Event, error)
}

// EventSender is the slice of the SDK client the Logger needs.
// *client.Client satisfies it.
type EventSender interface {
	LogEvent(ctx context.Context, sub client.EventSubmission) (*client.Event, error)
}

// ErrorPolicy decides what a failed Record does: swallow (log-and-continue)
// or propagate. It receives the action type and the transport error; whatever
// it returns is returned from Record.
type ErrorPolicy func(actionType string, err error) error

// Propagate returns every logging failure to the caller.
func Propagate() ErrorPolicy {
	return func(_ string, err error) error { return err }
}

// ContinueOnError swallows logging failures after recording them with the
// given logger, so instrumentation can never take down the instrumented
// agent. This matches the default posture of the SDK.
func ContinueOnError(logger *zap.Logger) ErrorPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(actionType string, err error) error {
		logger.Warn("action ledger logging failed",
			zap.String("action_type", actionType),
			zap.Error(err),
		)
		return nil
	}
}

// Logger records actions for one agent.
type Logger struct {
	sender      EventSender
	agentID     string
	environment string
	onError     ErrorPolicy
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithEnvironment tags every recorded event with an environment name
// (e.g. "production", "staging").
func WithEnvironment(env string) LoggerOption {
	return func(l *Logger) { l.environment = env }
}

// WithErrorPolicy replaces the default ContinueOnError policy.
func WithErrorPolicy(p ErrorPolicy) LoggerOption {
	return func(l *Logger) { l.onError = p }
}

// NewLogger creates a Logger for agentID on top of an SDK client (or any
// EventSender).
func NewLogger(sender EventSender, agentID string, opts ...LoggerOption) *Logger {
	l := &Logger{
		sender:  sender,
		agentID: agentID,
		onError: ContinueOnError(nil),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// hashValue commits to an arbitrary payload. nil means "no content".
func hashValue(v any) string {
	if v == nil {
		return client.ZeroDigest
	}
	return client.HashContent(fmt.Sprint(v))
}

// Record implements Recorder. On transport failure the configured error
// policy decides whether the error surfaces; on success the stored event is
// returned. Under ContinueOnError a failed record returns (nil, nil).
func (l *Logger) Record(ctx context.Context, a Action) (*client.Event, error) {
	event, err := l.sender.LogEvent(ctx, client.EventSubmission{
		AgentID:       l.agentID,
		ActionType:    a.Type,
		InputHash:     hashValue(a.Input),
		OutputHash:    hashValue(a.Output),
		ToolName:      a.ToolName,
		Environment:   l.environment,
		ModelVersion:  a.ModelVersion,
		PromptVersion: a.PromptVersion,
	})
	if err != nil {
		return nil, l.onError(a.Type, err)
	}
	return event, nil
}

// LLMStart records a prompt being sent to a model.
func (l *Logger) LLMStart(ctx context.Context, input any, model string) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "llm_start", Input: input, ModelVersion: model})
}

// LLMEnd records a model completion.
func (l *Logger) LLMEnd(ctx context.Context, output any) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "llm_end", Output: output})
}

// LLMError records a model failure.
func (l *Logger) LLMError(ctx context.Context, err error) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "llm_error", Output: fmt.Sprint(err)})
}

// ToolStart records a tool invocation.
func (l *Logger) ToolStart(ctx context.Context, toolName string, input any) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "tool_start", Input: input, ToolName: toolName})
}

// ToolEnd records a tool result.
func (l *Logger) ToolEnd(ctx context.Context, output any) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "tool_end", Output: output})
}

// ToolError records a tool failure.
func (l *Logger) ToolError(ctx context.Context, err error) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "tool_error", Output: fmt.Sprint(err)})
}

// ChainStart records entry into a named chain or workflow step.
func (l *Logger) ChainStart(ctx context.Context, chainName string, input any) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "chain_start", Input: input, ToolName: chainName})
}

// ChainEnd records a chain's outputs.
func (l *Logger) ChainEnd(ctx context.Context, output any) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "chain_end", Output: output})
}

// ChainError records a chain failure.
func (l *Logger) ChainError(ctx context.Context, err error) (*client.Event, error) {
	return l.Record(ctx, Action{Type: "chain_error", Output: fmt.Sprint(err)})
}
