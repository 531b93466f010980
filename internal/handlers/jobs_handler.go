package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
)

func (h *Handler) RunReminders(c *gin.Context) {
	result, err := h.Jobs.RunReminders(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ProcessPending(c *gin.Context) {
	limit, err := helpers.QueryInt("limit", c.Query("limit"), h.PendingBatch)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	result, err := h.Jobs.ProcessPending(c.Request.Context(), middleware.ActorFrom(c), limit)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
