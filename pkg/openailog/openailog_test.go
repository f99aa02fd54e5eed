package openailog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/ActionLedger/pkg/actionlog"
	"github.com/jmerrifield20/ActionLedger/pkg/client"
	"github.com/jmerrifield20/ActionLedger/pkg/openailog"
	openai "github.com/sashabaranov/go-openai"
)

var ctx = context.Background()

type fakeRecorder struct {
	actions []actionlog.Action
}

func (f *fakeRecorder) Record(_ context.Context, a actionlog.Action) (*client.Event, error) {
	f.actions = append(f.actions, a)
	return nil, nil
}

type fakeCompleter struct {
	resp openai.ChatCompletionResponse
	err  error
	got  openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestCreateChatCompletion_recordsStartAndEnd(t *testing.T) {
	rec := &fakeRecorder{}
	inner := &fakeCompleter{
		resp: openai.ChatCompletionResponse{
			Model: "gpt-4o-2024-08-06",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "four"}},
			},
		},
	}
	wrapped := openailog.Wrap(inner, rec)

	req := openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "what is 2+2"},
		},
	}
	resp, err := wrapped.CreateChatCompletion(ctx, req)
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}
	if resp.Choices[0].Message.Content != "four" {
		t.Fatalf("response not passed through: %+v", resp)
	}
	if inner.got.Model != "gpt-4o" {
		t.Fatalf("request not forwarded: %+v", inner.got)
	}

	if len(rec.actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(rec.actions))
	}
	start, end := rec.actions[0], rec.actions[1]
	if start.Type != "llm_start" || start.Input != "user: what is 2+2" || start.ModelVersion != "gpt-4o" {
		t.Fatalf("unexpected llm_start: %+v", start)
	}
	if end.Type != "llm_end" || end.Output != "four" || end.ModelVersion != "gpt-4o-2024-08-06" {
		t.Fatalf("unexpected llm_end: %+v", end)
	}
}

func TestCreateChatCompletion_recordsErrorAndPropagates(t *testing.T) {
	rec := &fakeRecorder{}
	want := errors.New("insufficient quota")
	wrapped := openailog.Wrap(&fakeCompleter{err: want}, rec)

	_, err := wrapped.CreateChatCompletion(ctx, openai.ChatCompletionRequest{Model: "gpt-4o"})
	if !errors.Is(err, want) {
		t.Fatalf("expected completion error, got %v", err)
	}

	if len(rec.actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(rec.actions))
	}
	if rec.actions[1].Type != "llm_error" || rec.actions[1].Output != "insufficient quota" {
		t.Fatalf("unexpected llm_error: %+v", rec.actions[1])
	}
}
