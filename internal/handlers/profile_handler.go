package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
)

func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.Users.Me(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) ListMyNotifications(c *gin.Context) {
	limit, err := helpers.QueryInt("limit", c.Query("limit"), 50)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	notifications, err := h.Users.Notifications(c.Request.Context(), middleware.ActorFrom(c), limit)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
