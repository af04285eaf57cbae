package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tablemind/rulebook-backend/internal/data/repos/rulebooks"
	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/ingest/chunker"
	"github.com/tablemind/rulebook-backend/internal/ingest/extractor"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/openai"
	"github.com/tablemind/rulebook-backend/internal/platform/websearch"
	"github.com/tablemind/rulebook-backend/internal/rag/embedder"
)

type IngestStatus string

const (
	// StatusMatched: a rulebook was found, validated, and stored (or was
	// already stored).
	StatusMatched IngestStatus = "matched"
	// StatusNoMatch: a PDF was found but the match gate rejected it.
	StatusNoMatch IngestStatus = "no_match"
	// StatusNotFound: web search produced no candidate rulebook PDF.
	StatusNotFound IngestStatus = "not_found"
	// StatusFailed: the pipeline errored; Error carries the cause. Used in
	// batch results where one bad game must not sink the rest.
	StatusFailed IngestStatus = "failed"
)

type IngestResult struct {
	Game            string       `json:"game"`
	Status          IngestStatus `json:"status"`
	DocID           string       `json:"doc_id,omitempty"`
	Title           string       `json:"title,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	Creator         string       `json:"creator,omitempty"`
	Pages           int          `json:"pages,omitempty"`
	Chunks          int          `json:"chunks,omitempty"`
	AlreadyIngested bool         `json:"already_ingested,omitempty"`
	Rationale       string       `json:"rationale,omitempty"`
	Error           string       `json:"error,omitempty"`
}

type IngestionService interface {
	// IngestGame finds, validates, and stores the rulebook for one game.
	// A missing rulebook or a gate rejection is a result status, not an
	// error; errors mean the pipeline itself failed.
	IngestGame(ctx context.Context, gameName string) (*IngestResult, error)
	// IngestGames runs IngestGame per game, capturing failures per entry.
	IngestGames(ctx context.Context, gameNames []string) []*IngestResult
}

type ingestionService struct {
	db        *gorm.DB
	docs      rulebooks.DocumentRepo
	chunks    rulebooks.ChunkRepo
	search    websearch.Client
	client    openai.Client
	embedder  *embedder.Embedder
	chunkOpts chunker.Options
	log       *logger.Logger
}

func NewIngestionService(
	db *gorm.DB,
	docs rulebooks.DocumentRepo,
	chunks rulebooks.ChunkRepo,
	search websearch.Client,
	client openai.Client,
	emb *embedder.Embedder,
	baseLog *logger.Logger,
) IngestionService {
	return &ingestionService{
		db:       db,
		docs:     docs,
		chunks:   chunks,
		search:   search,
		client:   client,
		embedder: emb,
		chunkOpts: chunker.Options{
			MaxWords:     envutil.Int("CHUNK_MAX_WORDS", chunker.DefaultMaxWords),
			OverlapWords: envutil.Int("CHUNK_OVERLAP_WORDS", chunker.DefaultOverlapWords),
		},
		log: baseLog.With("service", "IngestionService"),
	}
}

func (s *ingestionService) IngestGame(ctx context.Context, gameName string) (*IngestResult, error) {
	gameName = strings.TrimSpace(gameName)
	if gameName == "" {
		return nil, fmt.Errorf("game name required")
	}
	result := &IngestResult{Game: gameName}

	exists, err := s.docs.ExistsByTitle(ctx, nil, gameName)
	if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}
	if exists {
		s.log.Info("Rulebook already ingested", "game", gameName)
		result.Status = StatusMatched
		result.Title = gameName
		result.AlreadyIngested = true
		return result, nil
	}

	found, err := s.search.FindRulebookPDF(ctx, gameName)
	if errors.Is(err, websearch.ErrNoRulebookFound) {
		s.log.Info("No rulebook PDF found", "game", gameName)
		result.Status = StatusNotFound
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search rulebook: %w", err)
	}
	result.SourceURL = found.URL

	pages, err := extractor.ExtractPages(found.Bytes)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", found.URL, err)
	}
	fullText := extractor.FullText(pages)
	if strings.TrimSpace(fullText) == "" {
		return nil, fmt.Errorf("extract %s: %w", found.URL, domain.ErrExtractionEmpty)
	}

	verdict, err := s.classifyMatch(ctx, gameName, found.Title, found.URL, fullText)
	if err != nil {
		return nil, err
	}
	result.Rationale = verdict.Rationale
	if !verdict.IsMatch {
		s.log.Info("Match gate rejected PDF",
			"game", gameName,
			"url", found.URL,
			"rationale", verdict.Rationale,
		)
		result.Status = StatusNoMatch
		return result, nil
	}
	result.Creator = verdict.Creator

	candidates := chunker.Split(pages, s.chunkOpts)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", found.URL, domain.ErrExtractionEmpty)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	docID := contentSHA1(fullText)
	doc := &domain.Document{
		DocID:       docID,
		Title:       gameName,
		SourceURL:   found.URL,
		Creator:     verdict.Creator,
		ContentSHA1: docID,
		Pages:       len(pages),
		IngestedAt:  time.Now().UTC(),
	}
	if meta, err := json.Marshal(map[string]string{
		"pdf_title": found.Title,
		"rationale": verdict.Rationale,
	}); err == nil {
		doc.Metadata = datatypes.JSON(meta)
	}

	chunks := make([]*domain.Chunk, len(candidates))
	for i, c := range candidates {
		section := c.SectionPath
		chunks[i] = &domain.Chunk{
			// Deterministic per (document, index) so a re-run of the same
			// PDF collides with the existing rows instead of duplicating.
			ChunkID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", docID, c.Index))),
			DocID:       docID,
			ChunkIndex:  c.Index,
			Text:        c.Text,
			Embedding:   pgvector.NewVector(vectors[i]),
			WordCount:   c.WordCount,
			PageStart:   c.PageStart,
			PageEnd:     c.PageEnd,
			SectionPath: &section,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := s.docs.Upsert(ctx, tx, doc)
		if err != nil {
			return err
		}
		if stored.DocID != docID {
			// Same content already stored under another title; nothing to add.
			result.AlreadyIngested = true
			result.DocID = stored.DocID
			result.Title = stored.Title
			return nil
		}
		return s.chunks.Create(ctx, tx, chunks)
	})
	if err != nil {
		return nil, fmt.Errorf("store rulebook: %w", err)
	}

	if result.AlreadyIngested {
		result.Status = StatusMatched
		return result, nil
	}

	s.log.Info("Rulebook ingested",
		"game", gameName,
		"doc_id", docID,
		"pages", len(pages),
		"chunks", len(chunks),
	)

	result.Status = StatusMatched
	result.DocID = docID
	result.Title = gameName
	result.Pages = len(pages)
	result.Chunks = len(chunks)
	return result, nil
}

func (s *ingestionService) IngestGames(ctx context.Context, gameNames []string) []*IngestResult {
	results := make([]*IngestResult, 0, len(gameNames))
	for _, name := range gameNames {
		if ctx.Err() != nil {
			results = append(results, &IngestResult{
				Game:   strings.TrimSpace(name),
				Status: StatusFailed,
				Error:  ctx.Err().Error(),
			})
			continue
		}
		res, err := s.IngestGame(ctx, name)
		if err != nil {
			s.log.Error("Ingest failed", "game", name, "error", err.Error())
			res = &IngestResult{
				Game:   strings.TrimSpace(name),
				Status: StatusFailed,
				Error:  err.Error(),
			}
		}
		results = append(results, res)
	}
	return results
}

type matchVerdict struct {
	IsMatch   bool
	Creator   string
	Rationale string
}

// classifyMatch asks the model whether the downloaded PDF really is the
// rulebook for the requested game. The structured output keeps the gate
// decision machine-checkable.
func (s *ingestionService) classifyMatch(ctx context.Context, gameName, pdfTitle, sourceURL, fullText string) (*matchVerdict, error) {
	obj, err := s.client.GenerateJSON(ctx, matchSystemPrompt,
		matchUserPrompt(gameName, pdfTitle, sourceURL, fullText),
		matchSchemaName, matchSchema,
	)
	if err != nil {
		return nil, fmt.Errorf("match gate: %w", err)
	}

	verdict := &matchVerdict{}
	if v, ok := obj["is_match"].(bool); ok {
		verdict.IsMatch = v
	} else {
		return nil, fmt.Errorf("match gate: missing is_match in %v", obj)
	}
	if v, ok := obj["creator"].(string); ok {
		verdict.Creator = strings.TrimSpace(v)
	}
	if v, ok := obj["rationale"].(string); ok {
		verdict.Rationale = strings.TrimSpace(v)
	}
	return verdict, nil
}

func contentSHA1(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
