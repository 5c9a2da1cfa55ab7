package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/archive"
	"github.com/orrn/remoteprint/internal/logger"
)

type ArchiveHandler struct {
	archiver *archive.Archiver
}

func NewArchiveHandler(archiver *archive.Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

type ArchiveListResponse struct {
	Archives      []*archive.ArchiveFile `json:"archives"`
	Count         int                    `json:"count"`
	RetentionDays int                    `json:"retention_days"`
}

type ArchiveRunResponse struct {
	Archived int `json:"archived"`
}

func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	archives, err := h.archiver.ListArchives()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "archive_error",
			Message: "Failed to list archives",
		})
		return
	}

	c.JSON(http.StatusOK, ArchiveListResponse{
		Archives:      archives,
		Count:         len(archives),
		RetentionDays: h.archiver.RetentionDays(),
	})
}

func (h *ArchiveHandler) GetArchiveInfo(c *gin.Context) {
	info, err := h.archiver.GetArchiveInfo(c.Request.Context(), c.Param("filename"))
	if err != nil {
		writeArchiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *ArchiveHandler) DownloadArchive(c *gin.Context) {
	filename := c.Param("filename")
	path, err := h.archiver.FilePath(filename)
	if err != nil {
		writeArchiveError(c, err)
		return
	}
	c.FileAttachment(path, filename)
}

// RunArchive archives eligible submissions now instead of waiting for the
// next scheduled run.
func (h *ArchiveHandler) RunArchive(c *gin.Context) {
	moved, err := h.archiver.RunArchive(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("manual archive run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "archive_error",
			Message: "Failed to archive submissions",
		})
		return
	}
	c.JSON(http.StatusOK, ArchiveRunResponse{Archived: moved})
}

func (h *ArchiveHandler) DeleteArchive(c *gin.Context) {
	if err := h.archiver.DeleteArchive(c.Param("filename")); err != nil {
		writeArchiveError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ArchiveHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/archives", h.ListArchives)
	r.POST("/archives/run", h.RunArchive)
	r.GET("/archives/:filename", h.GetArchiveInfo)
	r.GET("/archives/:filename/download", h.DownloadArchive)
	r.DELETE("/archives/:filename", h.DeleteArchive)
}

func writeArchiveError(c *gin.Context, err error) {
	if errors.Is(err, archive.ErrArchiveNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Archive not found",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "archive_error",
		Message: err.Error(),
	})
}
