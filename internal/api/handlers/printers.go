package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/remoteprint/internal/core"
	"github.com/orrn/remoteprint/internal/directory"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreatePrinterRequest registers a printer by hand, or with Import set, copies
// name, state and capabilities from the print service.
type CreatePrinterRequest struct {
	ID           int64              `json:"id" binding:"required,gt=0"`
	Name         string             `json:"name"`
	Online       bool               `json:"online"`
	Capabilities *core.Capabilities `json:"capabilities"`
	Import       bool               `json:"import"`
}

type UpdatePrinterRequest struct {
	Name         string             `json:"name"`
	Capabilities *core.Capabilities `json:"capabilities"`
}

type SetOnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type PrinterHandler struct {
	manager *directory.Manager
}

func NewPrinterHandler(manager *directory.Manager) *PrinterHandler {
	return &PrinterHandler{manager: manager}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	if req.Import {
		p, err := h.manager.Import(ctx, req.ID)
		if err != nil {
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "import_failed",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusCreated, p)
		return
	}

	if req.Name == "" || req.Capabilities == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "name and capabilities are required unless importing",
		})
		return
	}

	p := core.NewPrinter(req.ID, req.Name, req.Online, *req.Capabilities)
	if err := h.manager.Add(ctx, p); err != nil {
		if errors.Is(err, directory.ErrPrinterAlreadyExists) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "duplicate_printer",
				Message: "Printer with this ID already exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create printer",
		})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	id, ok := parsePrinterID(c)
	if !ok {
		return
	}

	p, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		writePrinterError(c, err, "Failed to retrieve printer")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	id, ok := parsePrinterID(c)
	if !ok {
		return
	}

	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	p, err := h.manager.Get(ctx, id)
	if err != nil {
		writePrinterError(c, err, "Failed to retrieve printer")
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Capabilities != nil {
		p.Capabilities = req.Capabilities.Clone()
	}

	if err := h.manager.Update(ctx, p); err != nil {
		writePrinterError(c, err, "Failed to update printer")
		return
	}

	updated, err := h.manager.Get(ctx, id)
	if err != nil {
		writePrinterError(c, err, "Failed to retrieve printer")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	id, ok := parsePrinterID(c)
	if !ok {
		return
	}

	if err := h.manager.Remove(c.Request.Context(), id); err != nil {
		writePrinterError(c, err, "Failed to delete printer")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *PrinterHandler) SetOnline(c *gin.Context) {
	id, ok := parsePrinterID(c)
	if !ok {
		return
	}

	var req SetOnlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.manager.SetOnline(ctx, id, *req.Online); err != nil {
		writePrinterError(c, err, "Failed to update printer status")
		return
	}

	p, err := h.manager.Get(ctx, id)
	if err != nil {
		writePrinterError(c, err, "Failed to retrieve printer")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrinterHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/printers", h.ListPrinters)
	r.POST("/printers", h.CreatePrinter)
	r.GET("/printers/:id", h.GetPrinter)
	r.PUT("/printers/:id", h.UpdatePrinter)
	r.DELETE("/printers/:id", h.DeletePrinter)
	r.POST("/printers/:id/online", h.SetOnline)
}

func parsePrinterID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid printer ID",
		})
		return 0, false
	}
	return id, true
}

func writePrinterError(c *gin.Context, err error, message string) {
	if errors.Is(err, directory.ErrPrinterNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Printer not found",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "database_error",
		Message: message,
	})
}
