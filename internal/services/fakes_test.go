package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/tablemind/rulebook-backend/internal/data/repos/rulebooks"
	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/websearch"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logg
}

// fakeLLM implements openai.Client with canned responses.
type fakeLLM struct {
	textReply string
	textErr   error
	jsonReply map[string]any
	jsonErr   error

	textCalls int
	jsonCalls int
	lastUser  string
}

func (f *fakeLLM) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		v := make([]float32, domain.EmbeddingDim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeLLM) GenerateText(_ context.Context, _ string, user string) (string, error) {
	f.textCalls++
	f.lastUser = user
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.textReply, nil
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, user string, _ string, _ map[string]any) (map[string]any, error) {
	f.jsonCalls++
	f.lastUser = user
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	return f.jsonReply, nil
}

type fakeSearch struct {
	result websearch.Result
	err    error
	calls  int
}

func (f *fakeSearch) FindRulebookPDF(_ context.Context, _ string) (websearch.Result, error) {
	f.calls++
	if f.err != nil {
		return websearch.Result{}, f.err
	}
	return f.result, nil
}

// fakeChunkRepo serves canned search hits; writes are unexpected.
type fakeChunkRepo struct {
	rulebooks.ChunkRepo
	dense   []rulebooks.SearchHit
	lexical []rulebooks.SearchHit
}

func (f *fakeChunkRepo) SearchNearest(_ context.Context, _ []float32, _ int) ([]rulebooks.SearchHit, error) {
	return f.dense, nil
}

func (f *fakeChunkRepo) SearchLexical(_ context.Context, _ string, _ int) ([]rulebooks.SearchHit, error) {
	return f.lexical, nil
}

type fakeDocRepo struct {
	rulebooks.DocumentRepo
	existing map[string]bool
}

func (f *fakeDocRepo) ExistsByTitle(_ context.Context, _ *gorm.DB, title string) (bool, error) {
	return f.existing[title], nil
}
