// Package openailog instruments OpenAI chat completion calls with ledger
// recording. Wrap an *openai.Client and each CreateChatCompletion call
// produces an llm_start event before the request, then llm_end or llm_error
// after it, all bound to the wrapping logger's agent identity.
package openailog

import (
	"context"
	"strings"

	"github.com/jmerrifield20/ActionLedger/pkg/actionlog"
	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client this package wraps.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client records every chat completion through a Recorder while delegating
// the actual call to the wrapped completer.
type Client struct {
	inner    ChatCompleter
	recorder actionlog.Recorder
}

// Wrap instruments a ChatCompleter with ledger recording.
func Wrap(inner ChatCompleter, recorder actionlog.Recorder) *Client {
	return &Client{inner: inner, recorder: recorder}
}

// CreateChatCompletion forwards to the wrapped client, recording the request
// messages, the response content, and any failure. Recording failures follow
// the recorder's error policy and never alter the completion result.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	_, _ = c.recorder.Record(ctx, actionlog.Action{
		Type:         "llm_start",
		Input:        flattenRequest(req),
		ModelVersion: req.Model,
	})

	resp, err := c.inner.CreateChatCompletion(ctx, req)
	if err != nil {
		_, _ = c.recorder.Record(ctx, actionlog.Action{
			Type:         "llm_error",
			Output:       err.Error(),
			ModelVersion: req.Model,
		})
		return resp, err
	}

	_, _ = c.recorder.Record(ctx, actionlog.Action{
		Type:         "llm_end",
		Output:       flattenResponse(resp),
		ModelVersion: resp.Model,
	})
	return resp, nil
}

func flattenRequest(req openai.ChatCompletionRequest) string {
	var b strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func flattenResponse(resp openai.ChatCompletionResponse) string {
	var b strings.Builder
	for i, choice := range resp.Choices {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(choice.Message.Content)
	}
	return b.String()
}
