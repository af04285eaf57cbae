package rulebooks

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/tablemind/rulebook-backend/internal/data/repos/testutil"
	"github.com/tablemind/rulebook-backend/internal/domain"
)

func TestChunkRepoCreateConflictIgnored(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewChunkRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "Catan", "robber rules full text")

	id := uuid.New()
	chunk := &domain.Chunk{
		ChunkID:    id,
		DocID:      doc.DocID,
		ChunkIndex: 1,
		Text:       "When a seven is rolled, move the robber to any hex.",
		Embedding:  pgvector.NewVector(testutil.UnitVector(1)),
		WordCount:  10,
		PageStart:  4,
		PageEnd:    4,
	}

	if err := repo.Create(ctx, tx, []*domain.Chunk{chunk}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Double submission of the same batch must be a no-op, not an error.
	if err := repo.Create(ctx, tx, []*domain.Chunk{chunk}); err != nil {
		t.Fatalf("Create (resubmit): %v", err)
	}

	count, err := repo.CountByDocID(ctx, tx, doc.DocID)
	if err != nil {
		t.Fatalf("CountByDocID: %v", err)
	}
	if count != 1 {
		t.Fatalf("chunks: want=1 got=%d", count)
	}
}

func TestChunkRepoGetByDocIDOrdered(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewChunkRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "Azul", "azul full text")
	testutil.SeedChunk(t, ctx, tx, doc.DocID, 3, "third")
	testutil.SeedChunk(t, ctx, tx, doc.DocID, 1, "first")
	testutil.SeedChunk(t, ctx, tx, doc.DocID, 2, "second")

	chunks, err := repo.GetByDocID(ctx, tx, doc.DocID)
	if err != nil {
		t.Fatalf("GetByDocID: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len: want=3 got=%d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i+1 {
			t.Fatalf("chunk_index at %d: want=%d got=%d", i, i+1, c.ChunkIndex)
		}
	}
}

func TestChunkRepoSearchNearest(t *testing.T) {
	db := testutil.DB(t)

	// Vector search is committed-data only (ivfflat does not see uncommitted
	// rows consistently across versions), so this test writes and cleans up
	// real rows.
	ctx := context.Background()
	repo := NewChunkRepo(db, testutil.Logger(t))
	docRepo := NewDocumentRepo(db, testutil.Logger(t))

	fullText := "search nearest fixture " + uuid.NewString()
	hash := testutil.ContentSHA1(fullText)
	doc, err := docRepo.Upsert(ctx, nil, &domain.Document{
		DocID:       hash,
		Title:       "Catan Search Fixture",
		ContentSHA1: hash,
		Pages:       1,
	})
	if err != nil {
		t.Fatalf("Upsert doc: %v", err)
	}
	t.Cleanup(func() {
		_ = docRepo.Delete(ctx, nil, doc.DocID)
	})

	robber := &domain.Chunk{
		ChunkID:    uuid.New(),
		DocID:      doc.DocID,
		ChunkIndex: 1,
		Text:       "When a seven is rolled, move the robber.",
		Embedding:  pgvector.NewVector(testutil.UnitVector(0)),
		WordCount:  8,
		PageStart:  4,
		PageEnd:    4,
	}
	unrelated := &domain.Chunk{
		ChunkID:    uuid.New(),
		DocID:      doc.DocID,
		ChunkIndex: 2,
		Text:       "Place a greenery tile adjacent to your territory.",
		Embedding:  pgvector.NewVector(testutil.UnitVector(7)),
		WordCount:  8,
		PageStart:  9,
		PageEnd:    9,
	}
	if err := repo.Create(ctx, nil, []*domain.Chunk{robber, unrelated}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Query vector aligned with the robber chunk's embedding.
	hits, err := repo.SearchNearest(ctx, testutil.UnitVector(0), 2)
	if err != nil {
		t.Fatalf("SearchNearest: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected hits")
	}
	if hits[0].Chunk.ChunkID != robber.ChunkID {
		t.Fatalf("top hit: want robber chunk, got %q", hits[0].Chunk.Text)
	}
	if hits[0].Score < hits[len(hits)-1].Score {
		t.Fatalf("hits not ordered by descending score")
	}
	if hits[0].DocTitle != "Catan Search Fixture" {
		t.Fatalf("doc title: got %q", hits[0].DocTitle)
	}
}

func TestChunkRepoSearchLexical(t *testing.T) {
	db := testutil.DB(t)

	ctx := context.Background()
	repo := NewChunkRepo(db, testutil.Logger(t))
	docRepo := NewDocumentRepo(db, testutil.Logger(t))

	fullText := "lexical fixture " + uuid.NewString()
	hash := testutil.ContentSHA1(fullText)
	doc, err := docRepo.Upsert(ctx, nil, &domain.Document{
		DocID:       hash,
		Title:       "Lexical Fixture",
		ContentSHA1: hash,
		Pages:       1,
	})
	if err != nil {
		t.Fatalf("Upsert doc: %v", err)
	}
	t.Cleanup(func() {
		_ = docRepo.Delete(ctx, nil, doc.DocID)
	})

	text := "The robber steals one resource card from an adjacent player."
	chunk := &domain.Chunk{
		ChunkID:    uuid.New(),
		DocID:      doc.DocID,
		ChunkIndex: 1,
		Text:       text,
		Embedding:  pgvector.NewVector(testutil.UnitVector(3)),
		WordCount:  len(strings.Fields(text)),
		PageStart:  4,
		PageEnd:    4,
	}
	if err := repo.Create(ctx, nil, []*domain.Chunk{chunk}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	hits, err := repo.SearchLexical(ctx, "robber resource card", 5)
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Chunk.ChunkID == chunk.ChunkID {
			found = true
		}
	}
	if !found {
		t.Fatalf("lexical search did not return the robber chunk")
	}
}
