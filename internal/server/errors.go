package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/authorization"
	"github.com/smallbiznis/memoria/internal/catalog"
	codebatchdomain "github.com/smallbiznis/memoria/internal/codebatch/domain"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/memoria/internal/payout/domain"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/smallbiznis/memoria/internal/ratelimit"
	referraldomain "github.com/smallbiznis/memoria/internal/referral/domain"
	"github.com/smallbiznis/memoria/internal/transition"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Current string            `json:"current_status,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var conflict *transition.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflict.Error(),
			Current: conflict.Current,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, payoutdomain.ErrPayoutInProgress),
		errors.Is(err, ratelimit.ErrLockHeld),
		errors.Is(err, activationcodedomain.ErrCodeAlreadyUsed),
		errors.Is(err, activationcodedomain.ErrCodeExpired):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog labels a request failure for the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, err.Error()
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, commissiondomain.ErrInvalidCommission),
		errors.Is(err, commissiondomain.ErrInvalidStatus),
		errors.Is(err, commissiondomain.ErrInvalidTimeRange),
		errors.Is(err, commissiondomain.ErrEmptyBulkRequest),
		errors.Is(err, commissiondomain.ErrBulkRequestTooLarge),
		errors.Is(err, orderdomain.ErrInvalidOrderNumber),
		errors.Is(err, orderdomain.ErrInvalidTrackingNumber),
		errors.Is(err, orderdomain.ErrInvalidCarrier),
		errors.Is(err, orderdomain.ErrInvalidAddress),
		errors.Is(err, payoutdomain.ErrInvalidPayout),
		errors.Is(err, partnerdomain.ErrInvalidPartner),
		errors.Is(err, codebatchdomain.ErrInvalidBatch),
		errors.Is(err, codebatchdomain.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidProductType),
		errors.Is(err, catalog.ErrInvalidHostingDuration),
		errors.Is(err, activationcodedomain.ErrInvalidCode),
		errors.Is(err, activationcodedomain.ErrInvalidMemorial),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, commissiondomain.ErrCommissionNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, payoutdomain.ErrPayoutNotFound),
		errors.Is(err, partnerdomain.ErrPartnerNotFound),
		errors.Is(err, codebatchdomain.ErrBatchNotFound),
		errors.Is(err, activationcodedomain.ErrCodeNotFound),
		errors.Is(err, referraldomain.ErrReferralCodeNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrNoEligibleCommissions),
		errors.Is(err, partnerdomain.ErrPartnerInactive),
		errors.Is(err, pricing.ErrPriceNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return rootMessage(err)
	}
}

// rootMessage strips wrapping context so the code is the sentinel's text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "bulk_request_too_large":
		return "too many ids in one request"
	case "empty_bulk_request":
		return "ids are required"
	default:
		return "invalid value"
	}
}
