package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/memoria/internal/authorization"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
)

type listCommissionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	PartnerID string `form:"partner_id"`
	Status    string `form:"status"`
	From      string `form:"from"`
	To        string `form:"to"`
}

type rejectCommissionRequest struct {
	Notes string `json:"notes"`
}

type bulkApproveRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	req, err := s.commissionListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.commissionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Commissions, "page_info": resp.PageInfo})
}

func (s *Server) CommissionSummary(c *gin.Context) {
	partnerID, err := partnerScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.commissionSvc.Summary(c.Request.Context(), partnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ExportCommissions(c *gin.Context) {
	req, err := s.commissionListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	partner, err := s.partnerSvc.Get(ctx, req.PartnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Buffered so a failed export still reaches the error middleware.
	var buf bytes.Buffer
	if err := s.commissionSvc.ExportCSV(ctx, &buf, req); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := commissiondomain.ExportFilename(partner.Name, s.clock.Now())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) ApproveCommission(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	commission, err := s.commissionSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commission})
}

func (s *Server) RejectCommission(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rejectCommissionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	commission, err := s.commissionSvc.Reject(c.Request.Context(), id, req.Notes)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commission})
}

func (s *Server) BulkApproveCommissions(c *gin.Context) {
	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.commissionSvc.BulkApprove(c.Request.Context(), req.IDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// commissionListRequest pins partners to their own commissions; admins may
// filter by partner_id.
func (s *Server) commissionListRequest(c *gin.Context) (commissiondomain.ListRequest, error) {
	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return commissiondomain.ListRequest{}, invalidRequestError()
	}

	req := commissiondomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
	}

	actor, _ := actorFromGin(c)
	if actor.Role == authorization.RolePartner {
		partnerID, err := partnerScope(c)
		if err != nil {
			return commissiondomain.ListRequest{}, err
		}
		req.PartnerID = partnerID
	} else {
		partnerID, err := parseOptionalSnowflakeID(query.PartnerID)
		if err != nil {
			return commissiondomain.ListRequest{}, newValidationError("partner_id", "invalid_partner_id", "invalid partner_id")
		}
		if partnerID != nil {
			req.PartnerID = *partnerID
		}
	}

	if status := strings.TrimSpace(query.Status); status != "" {
		parsed, err := commissiondomain.ParseStatus(strings.ToLower(status))
		if err != nil {
			return commissiondomain.ListRequest{}, newValidationError("status", "invalid_status", "invalid status")
		}
		req.Status = parsed
	}

	from, to, err := parseTimeRange(query.From, query.To)
	if err != nil {
		return commissiondomain.ListRequest{}, err
	}
	req.From = from
	req.To = to
	return req, nil
}
