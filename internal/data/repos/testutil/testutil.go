package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
			dbErr = err
			return
		}

		if err := db.AutoMigrate(&domain.Document{}, &domain.Chunk{}); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func ContentSHA1(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, title, fullText string) *domain.Document {
	tb.Helper()
	hash := ContentSHA1(fullText)
	doc := &domain.Document{
		DocID:       hash,
		Title:       title,
		ContentSHA1: hash,
		Pages:       1,
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, docID string, index int, text string) *domain.Chunk {
	tb.Helper()
	c := &domain.Chunk{
		ChunkID:    uuid.New(),
		DocID:      docID,
		ChunkIndex: index,
		Text:       text,
		Embedding:  pgvector.NewVector(UnitVector(float32(index))),
		WordCount:  len(strings.Fields(text)),
		PageStart:  1,
		PageEnd:    1,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

// UnitVector builds a deterministic 384-dim unit vector whose direction is
// controlled by seed, so similarity ordering in tests is predictable.
func UnitVector(seed float32) []float32 {
	v := make([]float32, domain.EmbeddingDim)
	v[0] = 1
	if seed != 0 {
		v[0] = 0
		idx := int(seed) % domain.EmbeddingDim
		if idx < 0 {
			idx = -idx
		}
		v[idx] = 1
	}
	return v
}
