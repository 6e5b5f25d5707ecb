package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/memoria/internal/authorization"
	codebatchdomain "github.com/smallbiznis/memoria/internal/codebatch/domain"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
)

type codeBatchRequest struct {
	Quantity        int    `json:"quantity" form:"quantity"`
	ProductType     string `json:"product_type" form:"product_type"`
	HostingDuration string `json:"hosting_duration" form:"hosting_duration"`
}

type listCodeBatchesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
}

type redeemCodeRequest struct {
	MemorialID string `json:"memorial_id"`
}

func (s *Server) QuoteCodeBatch(c *gin.Context) {
	var req codeBatchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	input, err := s.codeBatchInput(c, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quote, err := s.codeBatchSvc.Quote(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) RequestCodeBatch(c *gin.Context) {
	var req codeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	input, err := s.codeBatchInput(c, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	batch, err := s.codeBatchSvc.Request(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": batch})
}

func (s *Server) ListPartnerCodeBatches(c *gin.Context) {
	partnerID, err := partnerScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listCodeBatchesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var status codebatchdomain.Status
	switch raw := codebatchdomain.Status(strings.ToLower(strings.TrimSpace(query.Status))); raw {
	case "":
	case codebatchdomain.StatusRequested, codebatchdomain.StatusApproved,
		codebatchdomain.StatusGenerated, codebatchdomain.StatusCancelled:
		status = raw
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
		return
	}

	resp, err := s.codeBatchSvc.ListByPartner(c.Request.Context(), codebatchdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		PartnerID: partnerID,
		Status:    status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Batches, "page_info": resp.PageInfo})
}

func (s *Server) ListBatchCodes(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	batch, err := s.codeBatchSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if actor, _ := actorFromGin(c); actor.Role == authorization.RolePartner && actor.ID != batch.PartnerID.String() {
		AbortWithError(c, codebatchdomain.ErrBatchNotFound)
		return
	}

	codes, err := s.codeSvc.ListByBatch(ctx, batch.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": codes, "batch": batch})
}

func (s *Server) RedeemActivationCode(c *gin.Context) {
	var req redeemCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	memorialID, err := snowflake.ParseString(strings.TrimSpace(req.MemorialID))
	if err != nil || memorialID == 0 {
		AbortWithError(c, newValidationError("memorial_id", "invalid_memorial_id", "invalid memorial_id"))
		return
	}

	code, err := s.codeSvc.Redeem(c.Request.Context(), strings.TrimSpace(c.Param("code")), memorialID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": code})
}

func (s *Server) codeBatchInput(c *gin.Context, req codeBatchRequest) (codebatchdomain.RequestInput, error) {
	partnerID, err := partnerScope(c)
	if err != nil {
		return codebatchdomain.RequestInput{}, err
	}
	return codebatchdomain.RequestInput{
		PartnerID:       partnerID,
		Quantity:        req.Quantity,
		ProductType:     strings.TrimSpace(req.ProductType),
		HostingDuration: strings.TrimSpace(req.HostingDuration),
	}, nil
}
