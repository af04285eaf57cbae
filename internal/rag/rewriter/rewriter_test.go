package rewriter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeLLM) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) GenerateText(_ context.Context, _ string, user string) (string, error) {
	f.calls++
	f.user = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return nil, errors.New("not implemented")
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logg
}

func TestRewriteFirstTurnSkipsLLM(t *testing.T) {
	llm := &fakeLLM{reply: "should not be used"}
	r := New(llm, testLogger(t))

	got, err := r.Rewrite(context.Background(), nil, "How does the robber work in Catan?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "How does the robber work in Catan?" {
		t.Fatalf("first turn must pass through: %q", got)
	}
	if llm.calls != 0 {
		t.Fatalf("LLM called on first turn")
	}
}

func TestRewriteUsesHistory(t *testing.T) {
	llm := &fakeLLM{reply: "  \"Can the Catan robber\nstay on the same hex?\"  "}
	r := New(llm, testLogger(t))

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "How does the robber work in Catan?"},
		{Role: domain.RoleAssistant, Content: "When a seven is rolled you move the robber."},
	}
	got, err := r.Rewrite(context.Background(), history, "Can it stay where it is?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "Can the Catan robber stay on the same hex?" {
		t.Fatalf("collapse: got %q", got)
	}
	if llm.calls != 1 {
		t.Fatalf("LLM calls: want=1 got=%d", llm.calls)
	}
	if !strings.Contains(llm.user, "user: How does the robber work in Catan?") {
		t.Fatalf("history missing from prompt: %q", llm.user)
	}
	if !strings.Contains(llm.user, "Latest question: Can it stay where it is?") {
		t.Fatalf("latest question missing from prompt: %q", llm.user)
	}
}

func TestRewriteEmptyReplyFallsBack(t *testing.T) {
	llm := &fakeLLM{reply: "   "}
	r := New(llm, testLogger(t))

	history := []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}
	got, err := r.Rewrite(context.Background(), history, "Can it stay where it is?")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "Can it stay where it is?" {
		t.Fatalf("fallback: got %q", got)
	}
}

func TestRewriteErrorPropagates(t *testing.T) {
	wantErr := errors.New("llm down")
	llm := &fakeLLM{err: wantErr}
	r := New(llm, testLogger(t))

	history := []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}
	if _, err := r.Rewrite(context.Background(), history, "Can it stay?"); !errors.Is(err, wantErr) {
		t.Fatalf("want llm error, got %v", err)
	}
}

func TestRewriteEmptyMessage(t *testing.T) {
	r := New(&fakeLLM{}, testLogger(t))
	if _, err := r.Rewrite(context.Background(), nil, "  "); err == nil {
		t.Fatalf("expected error for empty message")
	}
}
