package rulebooks

import (
	"context"
	"testing"

	"github.com/tablemind/rulebook-backend/internal/data/repos/testutil"
	"github.com/tablemind/rulebook-backend/internal/domain"
)

func TestDocumentRepoUpsertIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewDocumentRepo(db, testutil.Logger(t))

	fullText := "move the robber when a seven is rolled"
	hash := testutil.ContentSHA1(fullText)
	doc := &domain.Document{
		DocID:       hash,
		Title:       "Catan",
		ContentSHA1: hash,
		Pages:       12,
	}

	first, err := repo.Upsert(ctx, tx, doc)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if first.DocID != hash {
		t.Fatalf("DocID: want=%q got=%q", hash, first.DocID)
	}

	// Same content hash again, different title: must return the original
	// row and insert nothing.
	second, err := repo.Upsert(ctx, tx, &domain.Document{
		DocID:       hash,
		Title:       "Catan (reupload)",
		ContentSHA1: hash,
		Pages:       12,
	})
	if err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	if second.DocID != first.DocID {
		t.Fatalf("second upsert returned different doc_id: %q vs %q", second.DocID, first.DocID)
	}
	if second.Title != "Catan" {
		t.Fatalf("second upsert overwrote title: %q", second.Title)
	}

	var count int64
	if err := tx.WithContext(ctx).Model(&domain.Document{}).Where("content_sha1 = ?", hash).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("documents with hash: want=1 got=%d", count)
	}
}

func TestDocumentRepoExistsByTitle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewDocumentRepo(db, testutil.Logger(t))

	testutil.SeedDocument(t, ctx, tx, "Terraforming Mars", "place a greenery tile")

	exists, err := repo.ExistsByTitle(ctx, tx, "Terraforming Mars")
	if err != nil {
		t.Fatalf("ExistsByTitle: %v", err)
	}
	if !exists {
		t.Fatalf("expected Terraforming Mars to exist")
	}

	exists, err = repo.ExistsByTitle(ctx, tx, "Unknown Game")
	if err != nil {
		t.Fatalf("ExistsByTitle: %v", err)
	}
	if exists {
		t.Fatalf("expected Unknown Game to not exist")
	}
}

func TestDocumentRepoDeleteCascades(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	docRepo := NewDocumentRepo(db, testutil.Logger(t))
	chunkRepo := NewChunkRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, "Azul", "draft tiles from factory displays")
	testutil.SeedChunk(t, ctx, tx, doc.DocID, 1, "draft tiles from factory displays each round")
	testutil.SeedChunk(t, ctx, tx, doc.DocID, 2, "score completed rows at the end of the round")

	if err := docRepo.Delete(ctx, tx, doc.DocID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	count, err := chunkRepo.CountByDocID(ctx, tx, doc.DocID)
	if err != nil {
		t.Fatalf("CountByDocID: %v", err)
	}
	if count != 0 {
		t.Fatalf("chunks after delete: want=0 got=%d", count)
	}
}
