package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/service"
)

type ReasonRequest struct {
	Reason string `json:"reason"`
}

// bindReason accepts an empty body as an empty reason.
func bindReason(c *gin.Context) (string, bool) {
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		helpers.RespondWithBindError(c, err)
		return "", false
	}
	return req.Reason, true
}

func (h *Handler) ListAllEvents(c *gin.Context) {
	filter, err := eventFilter(c)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	events, err := h.Events.ListAll(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

type moderateFunc func(ctx context.Context, actor *access.Actor, id uuid.UUID, reason string) (*models.Event, error)

// moderateEvent runs an admin event transition named by message.
func (h *Handler) moderateEvent(c *gin.Context, message string, run moderateFunc) {
	eventID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}

	event, err := run(c.Request.Context(), middleware.ActorFrom(c), eventID, reason)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message, "event": event})
}

func (h *Handler) ApproveEvent(c *gin.Context) {
	h.moderateEvent(c, "Event approved.", func(ctx context.Context, actor *access.Actor, id uuid.UUID, _ string) (*models.Event, error) {
		return h.Events.Approve(ctx, actor, id)
	})
}

func (h *Handler) RejectEvent(c *gin.Context) {
	h.moderateEvent(c, "Event rejected.", h.Events.Reject)
}

func (h *Handler) FlagEvent(c *gin.Context) {
	h.moderateEvent(c, "Event flagged.", h.Events.Flag)
}

func (h *Handler) UnflagEvent(c *gin.Context) {
	h.moderateEvent(c, "Event unflagged.", func(ctx context.Context, actor *access.Actor, id uuid.UUID, _ string) (*models.Event, error) {
		return h.Events.Unflag(ctx, actor, id)
	})
}

func (h *Handler) ListUsers(c *gin.Context) {
	pageNum, limitNum, err := page(c)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	banned, err := helpers.ParseOptionalBool("banned", c.Query("banned"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	users, err := h.Users.List(c.Request.Context(), middleware.ActorFrom(c), service.UserFilter{
		Search: c.Query("search"),
		Banned: banned,
		Page:   pageNum,
		Limit:  limitNum,
	})
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, users)
}

type userActionFunc func(ctx context.Context, actor *access.Actor, id uuid.UUID, reason string) (*models.User, error)

func (h *Handler) userAction(c *gin.Context, message string, run userActionFunc) {
	userID, err := helpers.ParseUUID("id", c.Param("id"))
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}

	user, err := run(c.Request.Context(), middleware.ActorFrom(c), userID, reason)
	if err != nil {
		helpers.RespondWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message, "user": user})
}

// withoutReason adapts an admin user action that takes no reason.
func withoutReason(run func(context.Context, *access.Actor, uuid.UUID) (*models.User, error)) userActionFunc {
	return func(ctx context.Context, actor *access.Actor, id uuid.UUID, _ string) (*models.User, error) {
		return run(ctx, actor, id)
	}
}

func (h *Handler) BanUser(c *gin.Context) {
	h.userAction(c, "User banned.", h.Users.Ban)
}

func (h *Handler) UnbanUser(c *gin.Context) {
	h.userAction(c, "User unbanned.", withoutReason(h.Users.Unban))
}

func (h *Handler) VerifyUser(c *gin.Context) {
	h.userAction(c, "User verified.", withoutReason(h.Users.Verify))
}

func (h *Handler) UnverifyUser(c *gin.Context) {
	h.userAction(c, "User unverified.", withoutReason(h.Users.Unverify))
}
