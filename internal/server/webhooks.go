package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"go.uber.org/zap"
)

// HandleBillingWebhook receives provider deliveries. The signature gates the
// response: once it verifies, the provider always gets 200 so it stops
// redelivering; everything downstream is the processor's problem.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	if s.webhookLimiter != nil {
		allowed, err := s.webhookLimiter.AllowSource(ctx, c.ClientIP())
		if err != nil {
			// Redis trouble never blocks billing events.
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, "webhooks_billing", "rate")
			}
			c.JSON(http.StatusTooManyRequests, errorResponse{Success: false, Error: "rate_limited"})
			return
		} else if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, "webhooks_billing")
		}
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.provider.VerifySignature(payload, c.Request.Header); err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Success: false, Error: "invalid_signature"})
		return
	}

	event, err := s.provider.ParseEvent(payload)
	if err != nil {
		if !errors.Is(err, billingdomain.ErrEventIgnored) {
			s.log.Warn("unparseable webhook payload", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if s.webhookLimiter != nil {
		// Concurrent duplicate deliveries serialize on a short redis lock so
		// both see the event log row rather than racing the insert.
		token, locked, lockErr := s.webhookLimiter.TryLockEvent(ctx, event.Provider, event.ProviderEventID)
		if lockErr != nil {
			s.log.Warn("webhook event lock unavailable", zap.Error(lockErr))
		} else if !locked {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		} else {
			defer func() {
				if releaseErr := s.webhookLimiter.ReleaseEvent(ctx, event.Provider, event.ProviderEventID, token); releaseErr != nil {
					s.log.Warn("webhook event lock release failed", zap.Error(releaseErr))
				}
			}()
		}
	}

	if err := s.processor.Process(ctx, event); err != nil {
		// Only event-log persistence failures reach here; handler failures
		// are recorded on the event row.
		s.log.Error("webhook event log write failed",
			zap.String("event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
