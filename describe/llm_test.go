package describe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel records the last GenerateContent call and returns a canned
// response.
type fakeModel struct {
	messages []llms.MessageContent
	content  string
	err      error
	empty    bool
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestDescribeURL(t *testing.T) {
	m := &fakeModel{content: "  a bar chart of revenue  "}
	l := NewWithModel(m, nil)

	got, err := l.DescribeURL(context.Background(), "https://cdn.test/fig.png", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a bar chart of revenue" {
		t.Fatalf("description = %q", got)
	}

	if len(m.messages) != 1 || len(m.messages[0].Parts) != 2 {
		t.Fatalf("unexpected message shape: %+v", m.messages)
	}
	text, ok := m.messages[0].Parts[0].(llms.TextContent)
	if !ok {
		t.Fatalf("first part is %T, want text", m.messages[0].Parts[0])
	}
	// The default prompt is used when none is given.
	if text.Text != DefaultPrompt {
		t.Fatalf("prompt = %q", text.Text)
	}
	img, ok := m.messages[0].Parts[1].(llms.ImageURLContent)
	if !ok {
		t.Fatalf("second part is %T, want image URL", m.messages[0].Parts[1])
	}
	if img.URL != "https://cdn.test/fig.png" {
		t.Fatalf("image url = %q", img.URL)
	}
}

func TestDescribeBytesSendsDataURI(t *testing.T) {
	m := &fakeModel{content: "a diagram"}
	l := NewWithModel(m, nil)

	if _, err := l.DescribeBytes(context.Background(), "aGVsbG8=", "fig.png", "what is this?"); err != nil {
		t.Fatal(err)
	}

	img := m.messages[0].Parts[1].(llms.ImageURLContent)
	if !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %q, want a data URI", img.URL)
	}
	if !strings.HasSuffix(img.URL, "aGVsbG8=") {
		t.Fatalf("payload missing from data URI: %q", img.URL)
	}
	text := m.messages[0].Parts[0].(llms.TextContent)
	if text.Text != "what is this?" {
		t.Fatalf("prompt = %q", text.Text)
	}
}

func TestDescribeErrors(t *testing.T) {
	l := NewWithModel(&fakeModel{err: errors.New("rate limited")}, nil)
	if _, err := l.DescribeURL(context.Background(), "u", ""); err == nil {
		t.Fatal("expected the model error to surface")
	}

	l = NewWithModel(&fakeModel{empty: true}, nil)
	if _, err := l.DescribeURL(context.Background(), "u", ""); err == nil {
		t.Fatal("expected an error on an empty response")
	}
}

func TestNewLLMValidation(t *testing.T) {
	if _, err := NewLLM(Config{Provider: "openai"}); err == nil {
		t.Fatal("openai without an api key must fail")
	}
	if _, err := NewLLM(Config{Provider: "bedrock"}); err == nil {
		t.Fatal("unknown provider must fail")
	}
}
