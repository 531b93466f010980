package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
	"github.com/farellandr/eventhub/internal/service"
)

func (h *Handler) CreateEvent(c *gin.Context) {
	var req service.EventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindError(c, err)
		return
	}

	event, err := h.Events.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Event created successfully.",
		"event":   event,
	})
}

func (h *Handler) GetEvent(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	event, err := h.Events.Get(c.Request.Context(), middleware.ActorFrom(c), eventID)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// eventFilter reads the listing query parameters shared by every event
// listing.
func eventFilter(c *gin.Context) (service.EventFilter, error) {
	pageNum, limitNum, err := page(c)
	if err != nil {
		return service.EventFilter{}, err
	}
	organizerID, err := helpers.ParseOptionalUUID("organizer", c.Query("organizer"))
	if err != nil {
		return service.EventFilter{}, err
	}
	return service.EventFilter{
		Search:      c.Query("search"),
		Category:    c.Query("category"),
		From:        c.Query("from"),
		To:          c.Query("to"),
		OrganizerID: organizerID,
		State:       c.Query("state"),
		Page:        pageNum,
		Limit:       limitNum,
	}, nil
}

func (h *Handler) ListEvents(c *gin.Context) {
	filter, err := eventFilter(c)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	events, err := h.Events.List(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *Handler) ListMyEvents(c *gin.Context) {
	filter, err := eventFilter(c)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	events, err := h.Events.ListMine(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *Handler) UpdateEvent(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	var req service.EventPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithBindError(c, err)
		return
	}

	event, err := h.Events.Update(c.Request.Context(), middleware.ActorFrom(c), eventID, req)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   event,
	})
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	if err := h.Events.Delete(c.Request.Context(), middleware.ActorFrom(c), eventID); err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully."})
}

func (h *Handler) UploadEventImage(c *gin.Context) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		helpers.RespondWithAppError(c, apperr.Validation("image", "an image file is required"))
		return
	}

	event, err := h.Events.SetImage(c.Request.Context(), middleware.ActorFrom(c), eventID, func() (string, error) {
		return helpers.UploadFile(c, fileHeader, "event_images", h.Uploads)
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event image uploaded successfully.",
		"event":   event,
	})
}
