package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
	"github.com/farellandr/eventhub/internal/service"
)

func (h *Handler) RegisterForEvent(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	// An empty body registers with the account's contact details.
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		helpers.RespondWithBindError(c, err)
		return
	}

	registration, err := h.Registrations.Register(c.Request.Context(), middleware.ActorFrom(c), eventID, req)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "Registered successfully.",
		"registration": registration,
	})
}

func (h *Handler) CancelEventRegistration(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	if err := h.Registrations.CancelForEvent(c.Request.Context(), middleware.ActorFrom(c), eventID); err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Registration cancelled successfully."})
}

func (h *Handler) CancelRegistration(c *gin.Context) {
	registrationID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	if err := h.Registrations.Cancel(c.Request.Context(), middleware.ActorFrom(c), registrationID); err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Registration cancelled successfully."})
}

func (h *Handler) ListEventRegistrations(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	registrations, err := h.Registrations.ListForEvent(c.Request.Context(), middleware.ActorFrom(c), eventID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"registrations": registrations})
}

func (h *Handler) ListMyRegistrations(c *gin.Context) {
	registrations, err := h.Registrations.ListMine(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"registrations": registrations})
}
