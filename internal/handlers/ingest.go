package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/services"
)

type IngestHandler struct {
	log              *logger.Logger
	ingestionService services.IngestionService
}

func NewIngestHandler(log *logger.Logger, isvc services.IngestionService) *IngestHandler {
	return &IngestHandler{
		log:              log.With("handler", "IngestHandler"),
		ingestionService: isvc,
	}
}

type ingestRequest struct {
	Game string `json:"game" binding:"required"`
}

type ingestBatchRequest struct {
	Games []string `json:"games" binding:"required,min=1"`
}

// POST /api/ingest
// Find, validate, and store the rulebook for one game.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res, err := h.ingestionService.IngestGame(c.Request.Context(), req.Game)
	if err != nil {
		h.log.Error("Ingest failed", "game", req.Game, "error", err.Error())
		RespondError(c, http.StatusInternalServerError, "ingest_failed", err)
		return
	}

	c.JSON(statusCodeFor(res.Status), res)
}

// POST /api/ingest/batch
// Ingest several games; per-game outcomes come back in order, failures
// included.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var req ingestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	results := h.ingestionService.IngestGames(c.Request.Context(), req.Games)
	RespondOK(c, gin.H{"results": results})
}

func statusCodeFor(status services.IngestStatus) int {
	switch status {
	case services.StatusNotFound:
		return http.StatusNotFound
	case services.StatusNoMatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
