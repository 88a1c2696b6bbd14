package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"layerforge/internal/services/llm"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	calls      int
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.calls++
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteTextAndUsage(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello"},
			{Type: "text", Text: "world"},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	client, err := New(stub, "claude-3-5-haiku-latest")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	completion, err := client.Complete(context.Background(), llm.Request{Prompt: "say hi", MaxTokens: 64, Temperature: 0.3})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Text != "hello\nworld" {
		t.Fatalf("text = %q", completion.Text)
	}
	if completion.InputTokens != 10 || completion.OutputTokens != 5 {
		t.Fatalf("usage = %+v", completion)
	}
	if completion.Model != "claude-3-5-haiku-latest" {
		t.Fatalf("model = %q", completion.Model)
	}
	if stub.lastParams.MaxTokens != 64 || string(stub.lastParams.Model) != "claude-3-5-haiku-latest" {
		t.Fatalf("params = %+v", stub.lastParams)
	}
	if len(stub.lastParams.Messages) != 1 {
		t.Fatalf("messages = %d", len(stub.lastParams.Messages))
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{StopReason: sdk.StopReasonMaxTokens}}
	client, _ := New(stub, "claude")
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "x"})
	if !errors.Is(err, llm.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestCompletePropagatesError(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("overloaded")}
	client, _ := New(stub, "claude")
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	stub := &stubMessagesClient{}
	client, _ := New(stub, "claude")
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: " "}); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 0 {
		t.Fatalf("no request should be sent, got %d", stub.calls)
	}
}
