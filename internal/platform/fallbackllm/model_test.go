package fallbackllm

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGenerateWithSystemSendsBothMessages(t *testing.T) {
	fm := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "answer"}}}}
	m := NewWithModel(fm, "ollama:test")

	got, err := m.GenerateWithSystem(context.Background(), "be terse", "question")
	if err != nil {
		t.Fatalf("GenerateWithSystem: %v", err)
	}
	if got != "answer" {
		t.Fatalf("content: got=%q", got)
	}
	if len(fm.messages) != 2 || fm.messages[0].Role != llms.ChatMessageTypeSystem || fm.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("messages: got=%+v", fm.messages)
	}
}

func TestGenerateWithSystemSkipsEmptySystem(t *testing.T) {
	fm := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "x"}}}}
	if _, err := NewWithModel(fm, "m").GenerateWithSystem(context.Background(), " ", "q"); err != nil {
		t.Fatalf("GenerateWithSystem: %v", err)
	}
	if len(fm.messages) != 1 {
		t.Fatalf("messages: want=1 got=%d", len(fm.messages))
	}
}

func TestGenerateWithSystemErrors(t *testing.T) {
	if _, err := NewWithModel(&fakeModel{err: errors.New("down")}, "m").GenerateWithSystem(context.Background(), "", "q"); err == nil {
		t.Fatalf("provider error must surface")
	}
	if _, err := NewWithModel(&fakeModel{resp: &llms.ContentResponse{}}, "m").GenerateWithSystem(context.Background(), "", "q"); err == nil {
		t.Fatalf("empty choices must be an error")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "gemini"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	if _, err := New(Config{Provider: ProviderAnthropic, Model: "claude"}); err == nil {
		t.Fatalf("anthropic without key must fail")
	}
}
