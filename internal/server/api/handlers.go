package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"ferry/internal/server/database"
	"ferry/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the Ferry API.
type Handler struct {
	transfer      *service.TransferService
	streams       *service.StreamService
	repo          *database.Repository
	db            *database.DB
	baseURL       string
	maxChunkBytes int64
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(transfer *service.TransferService, streams *service.StreamService, repo *database.Repository, db *database.DB, baseURL string, maxChunkBytes int64) *Handler {
	return &Handler{
		transfer:      transfer,
		streams:       streams,
		repo:          repo,
		db:            db,
		baseURL:       baseURL,
		maxChunkBytes: maxChunkBytes,
	}
}

// initializeRequest is the body of POST /api/uploads.
type initializeRequest struct {
	TotalSize  int64 `json:"total_size"`
	ChunkCount int   `json:"chunk_count"`
}

// HandleInitialize handles POST /api/uploads.
// Opens a new upload session for the calling owner.
func (h *Handler) HandleInitialize(c echo.Context) error {
	var req initializeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid request body",
		})
	}

	session, err := h.transfer.Initialize(c.Request().Context(), ownerID(c), req.TotalSize, req.ChunkCount)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"session_id":  session.ID,
		"chunk_count": session.ChunkCount,
		"total_size":  session.TotalSize,
		"created_at":  session.CreatedAt,
	})
}

// HandleChunk handles PUT /api/uploads/:id/chunks/:index.
// The request body is the raw chunk payload.
func (h *Handler) HandleChunk(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "chunk index must be an integer",
		})
	}

	// One byte past the limit is enough for the service to reject the chunk.
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxChunkBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "failed to read chunk payload",
		})
	}

	received, err := h.transfer.AcceptChunk(c.Request().Context(), c.Param("id"), ownerID(c), index, payload)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":         "chunk stored",
		"session_id":      c.Param("id"),
		"received_chunks": received,
	})
}

// finalizeRequest is the body of POST /api/uploads/:id/complete.
type finalizeRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// HandleFinalize handles POST /api/uploads/:id/complete.
// Assembles the received chunks into a downloadable artifact.
func (h *Handler) HandleFinalize(c echo.Context) error {
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid request body",
		})
	}

	artifact, err := h.transfer.Finalize(c.Request().Context(), c.Param("id"), ownerID(c), service.ArtifactMetadata{
		Name:        req.Name,
		ContentType: req.ContentType,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"artifact_id":  artifact.ID,
		"name":         artifact.Name,
		"size":         artifact.Size,
		"content_type": artifact.ContentType,
		"download_url": fmt.Sprintf("%s/d/%s", h.baseURL, artifact.ID),
	})
}

// HandleStatus handles GET /api/uploads/:id.
// Reports which chunks the session has received.
func (h *Handler) HandleStatus(c echo.Context) error {
	status, err := h.transfer.Status(c.Request().Context(), c.Param("id"), ownerID(c))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, status)
}

// HandleCancel handles DELETE /api/uploads/:id.
// Discards the session and any staged chunks.
func (h *Handler) HandleCancel(c echo.Context) error {
	if err := h.transfer.Cancel(c.Request().Context(), c.Param("id"), ownerID(c)); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "upload cancelled",
	})
}

// HandleDownload handles GET /d/:id.
// Streams the artifact, honoring a single-range Range header.
func (h *Handler) HandleDownload(c echo.Context) error {
	result, err := h.streams.Serve(
		c.Request().Context(),
		c.Param("id"),
		ownerID(c),
		c.Request().Header.Get("Range"),
	)
	if err != nil {
		if result != nil && result.Status == http.StatusRequestedRangeNotSatisfiable {
			c.Response().Header().Set("Content-Range", fmt.Sprintf("bytes */%d", result.Size))
			return c.JSON(http.StatusRequestedRangeNotSatisfiable, echo.Map{
				"error": "requested range not satisfiable",
			})
		}
		return mapServiceError(c, err)
	}
	defer result.Body.Close()

	res := c.Response()
	res.Header().Set("Accept-Ranges", "bytes")
	res.Header().Set("Content-Type", result.ContentType)
	res.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	res.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.ContentRange != "" {
		res.Header().Set("Content-Range", result.ContentRange)
	}

	res.WriteHeader(result.Status)
	if _, err := io.Copy(res, result.Body); err != nil {
		// The client went away mid-stream; nothing useful to return.
		slog.Debug("download stream interrupted", "artifact_id", c.Param("id"), "error", err)
	}
	return nil
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate server statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.repo.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_sessions":     stats.TotalSessions,
		"active_sessions":    stats.ActiveSessions,
		"total_artifacts":    stats.TotalArtifacts,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	var incomplete *service.IncompleteError
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidParameters), errors.Is(err, service.ErrInvalidChunk):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.As(err, &incomplete):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":          "upload is incomplete",
			"missing_chunks": incomplete.Missing,
		})
	case errors.Is(err, service.ErrAlreadyCompleted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "upload already completed"})
	case errors.Is(err, service.ErrSizeMismatch):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrAssemblyFailed):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assemble artifact"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
