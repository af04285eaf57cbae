package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// EmbeddingDim is the fixed dimension of chunk and query embeddings.
// The reference embedding model (all-MiniLM class) emits 384-dim vectors;
// the chunks table schema is declared against this value.
const EmbeddingDim = 384

// Document is one ingested rulebook. DocID is the SHA-1 of the full
// extracted text, so re-ingesting identical content resolves to the same
// row and the content_sha1 unique index makes concurrent ingestion safe.
type Document struct {
	DocID       string         `gorm:"column:doc_id;primaryKey" json:"doc_id"`
	Title       string         `gorm:"column:title;not null;index" json:"title"`
	SourceURL   string         `gorm:"column:source_url" json:"source_url,omitempty"`
	Creator     string         `gorm:"column:creator" json:"creator,omitempty"`
	ContentSHA1 string         `gorm:"column:content_sha1;not null;uniqueIndex" json:"content_sha1"`
	Pages       int            `gorm:"column:pages;not null" json:"pages"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	IngestedAt  time.Time      `gorm:"column:ingested_at;not null;default:now()" json:"ingested_at"`
}

func (Document) TableName() string { return "documents" }

// Chunk is a bounded span of a document's text sized for the embedding
// model, with page provenance. Immutable after ingestion; removed only by
// cascading document deletion.
type Chunk struct {
	ChunkID  uuid.UUID `gorm:"type:uuid;column:chunk_id;primaryKey" json:"chunk_id"`
	DocID    string    `gorm:"column:doc_id;not null;index:idx_chunks_doc" json:"doc_id"`
	Document *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocID;references:DocID" json:"document,omitempty"`

	ChunkIndex  int             `gorm:"column:chunk_index;not null;index:idx_chunks_doc" json:"chunk_index"`
	Text        string          `gorm:"column:text;type:text;not null" json:"text"`
	Embedding   pgvector.Vector `gorm:"type:vector(384);column:embedding" json:"-"`
	WordCount   int             `gorm:"column:word_count;not null" json:"word_count"`
	PageStart   int             `gorm:"column:page_start;not null" json:"page_start"`
	PageEnd     int             `gorm:"column:page_end;not null" json:"page_end"`
	SectionPath *string         `gorm:"column:section_path" json:"section_path,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string { return "chunks" }
