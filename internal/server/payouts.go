package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/memoria/internal/authorization"
	payoutdomain "github.com/smallbiznis/memoria/internal/payout/domain"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
)

type createPayoutRequest struct {
	PaymentReference string `json:"payment_reference"`
	Notes            string `json:"notes"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	partnerID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPayoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	payout, err := s.payoutSvc.CreatePayout(c.Request.Context(), payoutdomain.CreateRequest{
		PartnerID:        partnerID,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		Notes:            strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payout})
}

func (s *Server) ListPartnerPayouts(c *gin.Context) {
	partnerID, err := partnerScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.ListByPartner(c.Request.Context(), payoutdomain.ListRequest{
		Pagination: query,
		PartnerID:  partnerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payouts, "page_info": resp.PageInfo})
}

func (s *Server) DownloadPayoutStatement(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	payout, err := s.payoutSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// A partner asking for someone else's payout sees the same 404 as a
	// missing one.
	if actor, _ := actorFromGin(c); actor.Role == authorization.RolePartner && actor.ID != payout.PartnerID.String() {
		AbortWithError(c, payoutdomain.ErrPayoutNotFound)
		return
	}

	body, err := s.payoutSvc.Statement(ctx, payout.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := "payout-" + slug.Make(payout.PayoutNumber) + ".pdf"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
