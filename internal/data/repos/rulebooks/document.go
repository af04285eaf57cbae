package rulebooks

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

type DocumentRepo interface {
	// Upsert inserts the document unless a row with the same content hash
	// already exists, and returns the stored row either way. Conflict-ignore
	// on the unique index makes concurrent ingestion of the same PDF resolve
	// to exactly one row without application-level locking.
	Upsert(ctx context.Context, tx *gorm.DB, doc *domain.Document) (*domain.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, docID string) (*domain.Document, error)
	ExistsByTitle(ctx context.Context, tx *gorm.DB, title string) (bool, error)
	// Delete removes the document and all of its chunks.
	Delete(ctx context.Context, tx *gorm.DB, docID string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *domain.Document) (*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil || doc.ContentSHA1 == "" {
		return nil, errors.New("document with content hash required")
	}

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_sha1"}},
			DoNothing: true,
		}).
		Create(doc).Error; err != nil {
		return nil, err
	}

	// The insert may have been a no-op; the row keyed by the hash is
	// authoritative either way.
	var stored domain.Document
	if err := transaction.WithContext(ctx).
		Where("content_sha1 = ?", doc.ContentSHA1).
		Take(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, docID string) (*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc domain.Document
	if err := transaction.WithContext(ctx).
		Where("doc_id = ?", docID).
		Take(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) ExistsByTitle(ctx context.Context, tx *gorm.DB, title string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Document{}).
		Where("title = ?", title).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *documentRepo) Delete(ctx context.Context, tx *gorm.DB, docID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		if err := t.Where("doc_id = ?", docID).Delete(&domain.Chunk{}).Error; err != nil {
			return err
		}
		return t.Where("doc_id = ?", docID).Delete(&domain.Document{}).Error
	})
}
