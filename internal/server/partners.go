package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
)

func (s *Server) ActivatePartner(c *gin.Context) {
	s.transitionPartner(c, s.partnerSvc.Activate)
}

func (s *Server) SuspendPartner(c *gin.Context) {
	s.transitionPartner(c, s.partnerSvc.Suspend)
}

func (s *Server) RejectPartner(c *gin.Context) {
	s.transitionPartner(c, s.partnerSvc.Reject)
}

func (s *Server) transitionPartner(c *gin.Context, apply func(context.Context, snowflake.ID) (*partnerdomain.Partner, error)) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	partner, err := apply(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": partner})
}
