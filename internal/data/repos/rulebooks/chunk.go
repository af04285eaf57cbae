package rulebooks

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// SearchHit is one retrieved chunk with its owning document's title and a
// similarity score in [0, 1] (cosine for dense search, normalized ts_rank
// for lexical search).
type SearchHit struct {
	Chunk    domain.Chunk
	DocTitle string
	Score    float64
}

type ChunkRepo interface {
	// Create bulk-inserts chunks; a conflicting chunk_id is ignored so an
	// accidentally re-submitted batch does not error or duplicate.
	Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error
	GetByDocID(ctx context.Context, tx *gorm.DB, docID string) ([]*domain.Chunk, error)
	CountByDocID(ctx context.Context, tx *gorm.DB, docID string) (int64, error)
	// SearchNearest returns the top-k chunks by cosine similarity to the
	// query vector, best first.
	SearchNearest(ctx context.Context, qvec []float32, k int) ([]SearchHit, error)
	// SearchLexical is the full-text fallback used when dense retrieval
	// returns nothing.
	SearchLexical(ctx context.Context, query string, k int) ([]SearchHit, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return nil
	}

	// Keep batches small because Text is large.
	const batchSize = 100

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoNothing: true,
		}).
		CreateInBatches(chunks, batchSize).Error
}

func (r *chunkRepo) GetByDocID(ctx context.Context, tx *gorm.DB, docID string) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Chunk
	if err := transaction.WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) CountByDocID(ctx context.Context, tx *gorm.DB, docID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Chunk{}).
		Where("doc_id = ?", docID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type searchRow struct {
	ChunkID     uuid.UUID
	DocID       string
	DocTitle    string
	ChunkIndex  int
	Text        string
	WordCount   int
	PageStart   int
	PageEnd     int
	SectionPath *string
	Score       float64
}

func (r *chunkRepo) SearchNearest(ctx context.Context, qvec []float32, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	v := pgvector.NewVector(qvec)

	var rows []searchRow
	if err := r.db.WithContext(ctx).Raw(
		`SELECT c.chunk_id, c.doc_id, d.title AS doc_title, c.chunk_index,
		        c.text, c.word_count, c.page_start, c.page_end, c.section_path,
		        1 - (c.embedding <=> ?) AS score
		 FROM chunks c
		 JOIN documents d ON d.doc_id = c.doc_id
		 ORDER BY c.embedding <=> ?
		 LIMIT ?`,
		v, v, k,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToHits(rows), nil
}

func (r *chunkRepo) SearchLexical(ctx context.Context, query string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 5
	}

	var rows []searchRow
	if err := r.db.WithContext(ctx).Raw(
		`SELECT c.chunk_id, c.doc_id, d.title AS doc_title, c.chunk_index,
		        c.text, c.word_count, c.page_start, c.page_end, c.section_path,
		        ts_rank(to_tsvector('english', coalesce(c.text, '')), plainto_tsquery('english', ?)) AS score
		 FROM chunks c
		 JOIN documents d ON d.doc_id = c.doc_id
		 WHERE to_tsvector('english', coalesce(c.text, '')) @@ plainto_tsquery('english', ?)
		 ORDER BY score DESC
		 LIMIT ?`,
		query, query, k,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToHits(rows), nil
}

func rowsToHits(rows []searchRow) []SearchHit {
	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, SearchHit{
			Chunk: domain.Chunk{
				ChunkID:     row.ChunkID,
				DocID:       row.DocID,
				ChunkIndex:  row.ChunkIndex,
				Text:        row.Text,
				WordCount:   row.WordCount,
				PageStart:   row.PageStart,
				PageEnd:     row.PageEnd,
				SectionPath: row.SectionPath,
			},
			DocTitle: row.DocTitle,
			Score:    row.Score,
		})
	}
	return hits
}
