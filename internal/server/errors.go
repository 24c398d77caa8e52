package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthenticated")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ErrorHandlingMiddleware translates errors attached to the gin context into
// the API error envelope. Handlers attach errors via AbortWithError and never
// write error bodies themselves.
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

		status, code := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Success: false, Error: code})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"

	case errors.Is(err, ErrForbidden),
		errors.Is(err, organizationdomain.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	case isNotFoundError(err):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, billingdomain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "payment_failed"

	case errors.Is(err, billingdomain.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"

	case isValidationError(err):
		return http.StatusBadRequest, err.Error()

	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, assetdomain.ErrAssetNotFound),
		errors.Is(err, assetdomain.ErrIssueNotFound),
		errors.Is(err, apikeydomain.ErrNotFound):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrLimitExceeded),
		errors.Is(err, subscriptiondomain.ErrCustomPricingRequired),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidUser),
		errors.Is(err, organizationdomain.ErrInvalidRole),
		errors.Is(err, organizationdomain.ErrSlugTaken),
		errors.Is(err, assetdomain.ErrInvalidAsset),
		errors.Is(err, assetdomain.ErrInvalidIssue),
		errors.Is(err, assetdomain.ErrTagTaken),
		errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidUser),
		errors.Is(err, pricing.ErrInvalidInterval):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request log's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, code := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", code
	default:
		return "client_error", code
	}
}
