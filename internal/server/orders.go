package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
)

type shipmentRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

func (s *Server) MarkOrderProcessing(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.MarkProcessing)
}

func (s *Server) CompleteOrder(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.MarkCompleted)
}

func (s *Server) CancelOrder(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.Cancel)
}

func (s *Server) ShipOrder(c *gin.Context) {
	s.shipmentOrder(c, s.orderSvc.MarkShipped)
}

func (s *Server) UpdateOrderTracking(c *gin.Context) {
	s.shipmentOrder(c, s.orderSvc.UpdateTracking)
}

func (s *Server) transitionOrder(c *gin.Context, apply func(context.Context, string) (*orderdomain.Order, error)) {
	order, err := apply(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) shipmentOrder(c *gin.Context, apply func(context.Context, string, orderdomain.Shipment) (*orderdomain.Order, error)) {
	var req shipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := apply(c.Request.Context(), strings.TrimSpace(c.Param("number")), orderdomain.Shipment{
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		Carrier:        strings.TrimSpace(req.Carrier),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}
