package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
)

// GetTicketQR renders the registration's signed ticket as a PNG QR code.
func (h *Handler) GetTicketQR(c *gin.Context) {
	registrationID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	qrData, err := h.Registrations.Ticket(c.Request.Context(), middleware.ActorFrom(c), registrationID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	qrImage, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

type CheckInRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

func (h *Handler) CheckIn(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindError(c, err)
		return
	}

	registration, err := h.Registrations.CheckIn(c.Request.Context(), middleware.ActorFrom(c), eventID, req.QRData)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Ticket validated successfully",
		"registration": registration,
	})
}
