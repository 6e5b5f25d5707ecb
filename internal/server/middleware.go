package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/memoria/internal/authorization"
	obslogger "github.com/smallbiznis/memoria/internal/observability/logger"
)

// Identity headers are set by the authenticating proxy in front of the service.
const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-ID"

	contextActorKey = "actor"
)

// Identity admits only callers presenting role and binds them to the request
// context for logging and auditing.
func (s *Server) Identity(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := authorization.Actor{
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
			ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
		}
		if actor.Role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if actor.Role != role {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := obslogger.WithActorContext(c.Request.Context(), actor.Role, actor.ID)
		ctx = obslogger.WithClientInfo(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromGin(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromGin(c *gin.Context) (authorization.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok
}

// partnerScope resolves which partner a request acts on. Partners are always
// pinned to themselves; admins name the partner in the path.
func partnerScope(c *gin.Context) (snowflake.ID, error) {
	actor, ok := actorFromGin(c)
	if !ok {
		return 0, ErrUnauthorized
	}
	if actor.Role == authorization.RolePartner {
		id, err := snowflake.ParseString(actor.ID)
		if err != nil || id == 0 {
			return 0, ErrUnauthorized
		}
		return id, nil
	}
	return parseIDParam(c, "id")
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_id", "invalid id")
	}
	return id, nil
}
