package scan_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-guestpass/internal/auth"
	"ms-guestpass/internal/scan"
)

type Handler struct {
	ScanService *scan.ScanService
}

func NewHandler(scanService *scan.ScanService) *Handler {
	return &Handler{ScanService: scanService}
}

// Routes mounts the scanner-facing endpoints on an authenticated group.
func (h *Handler) Routes(r gin.IRoutes) {
	r.POST("/scan/validate", h.Validate)
	r.POST("/scan/confirm", h.Confirm)
}

type validateRequest struct {
	QRToken string `json:"qrToken" binding:"required,min=16"`
}

type confirmRequest struct {
	QRToken         string `json:"qrToken" binding:"required,min=16"`
	ClientRequestID string `json:"clientRequestId" binding:"required"`
}

// Validate handles POST /scan/validate. Unknown tokens are a 200 result,
// never a 404: a bad scan is the normal case at the door.
func (h *Handler) Validate(c *gin.Context) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ScanService.Validate(c.Request.Context(), principal.UserID, req.QRToken)
	if err != nil {
		h.writeScanError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Confirm handles POST /scan/confirm. The service hands back the exact
// bytes to send, so replays of a retried request are byte-identical.
func (h *Handler) Confirm(c *gin.Context) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.ScanService.Confirm(c.Request.Context(), principal.UserID, req.QRToken, req.ClientRequestID)
	if err != nil {
		h.writeScanError(c, err)
		return
	}

	c.Data(outcome.StatusCode, "application/json", outcome.Payload)
}

func (h *Handler) writeScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scan.ErrInvalidRequestID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scan.ErrScannerInactive), errors.Is(err, scan.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, scan.ErrRequestIDConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
