package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tablemind/rulebook-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Document{},
		&domain.Chunk{},
	)
}

// EnsureSearchIndexes creates the retrieval indexes AutoMigrate does not
// know about: an ivfflat cosine index over chunk embeddings and a GIN
// full-text index over chunk text for the lexical fallback.
func EnsureSearchIndexes(db *gorm.DB) error {
	if err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding
		 ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);`,
	).Error; err != nil {
		return fmt.Errorf("create idx_chunks_embedding: %w", err)
	}
	if err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_chunks_text_fts
		 ON chunks USING GIN (to_tsvector('english', coalesce(text, '')));`,
	).Error; err != nil {
		return fmt.Errorf("create idx_chunks_text_fts: %w", err)
	}
	return nil
}
