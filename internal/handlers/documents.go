package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/rulebook-backend/internal/data/repos/rulebooks"
	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// DocumentHandler exposes read/delete access to stored rulebooks, mainly
// for operating the corpus (inspecting what got ingested, evicting a bad
// ingest).
type DocumentHandler struct {
	log       *logger.Logger
	docRepo   rulebooks.DocumentRepo
	chunkRepo rulebooks.ChunkRepo
}

func NewDocumentHandler(log *logger.Logger, docs rulebooks.DocumentRepo, chunks rulebooks.ChunkRepo) *DocumentHandler {
	return &DocumentHandler{
		log:       log.With("handler", "DocumentHandler"),
		docRepo:   docs,
		chunkRepo: chunks,
	}
}

// GET /api/documents/:doc_id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID := c.Param("doc_id")

	doc, err := h.docRepo.GetByID(c.Request.Context(), nil, docID)
	if errors.Is(err, domain.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "document_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("Get document failed", "doc_id", docID, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "document_lookup_failed", err)
		return
	}

	chunkCount, err := h.chunkRepo.CountByDocID(c.Request.Context(), nil, docID)
	if err != nil {
		h.log.Error("Count chunks failed", "doc_id", docID, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "document_lookup_failed", err)
		return
	}

	RespondOK(c, gin.H{
		"document":    doc,
		"chunk_count": chunkCount,
	})
}

// DELETE /api/documents/:doc_id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	docID := c.Param("doc_id")

	if _, err := h.docRepo.GetByID(c.Request.Context(), nil, docID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "document_not_found", err)
			return
		}
		h.log.Error("Delete document lookup failed", "doc_id", docID, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "document_delete_failed", err)
		return
	}

	if err := h.docRepo.Delete(c.Request.Context(), nil, docID); err != nil {
		h.log.Error("Delete document failed", "doc_id", docID, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "document_delete_failed", err)
		return
	}

	h.log.Info("Document deleted", "doc_id", docID)
	c.Status(http.StatusNoContent)
}
