package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/models"
)

const (
	actorKey       = "actor"
	JobTokenHeader = "X-Job-Token"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return strings.TrimSpace(token), ok
}

// JWTAuthMiddleware requires a valid token and stores the actor. Banned
// users are turned away with their ban reason.
func JWTAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || token == "" {
			helpers.RespondWithAppError(c, apperr.Unauthorized("authorization header required"))
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			helpers.RespondWithAppError(c, err)
			return
		}
		c.Set(actorKey, access.ActorFromUser(user))
		c.Next()
	}
}

// OptionalAuthMiddleware stores the actor when a token is present and
// leaves the request anonymous otherwise. A bad token is still rejected.
func OptionalAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := bearerToken(c); !ok {
			c.Next()
			return
		}
		JWTAuthMiddleware(auth)(c)
	}
}

// JobAuthMiddleware admits scheduled triggers carrying the job token as the
// system actor and otherwise falls back to bearer authentication.
func JobAuthMiddleware(jobToken string, auth Authenticator) gin.HandlerFunc {
	bearer := JWTAuthMiddleware(auth)
	return func(c *gin.Context) {
		if supplied := c.GetHeader(JobTokenHeader); supplied != "" {
			if jobToken == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(jobToken)) != 1 {
				helpers.RespondWithAppError(c, apperr.Unauthorized("invalid job token"))
				return
			}
			c.Set(actorKey, access.System())
			c.Next()
			return
		}
		bearer(c)
	}
}

// ActorFrom returns the authenticated actor, or nil for anonymous requests.
func ActorFrom(c *gin.Context) *access.Actor {
	actor, exists := c.Get(actorKey)
	if !exists {
		return nil
	}
	return actor.(*access.Actor)
}
