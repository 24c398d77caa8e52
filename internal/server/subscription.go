package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
)

type pricingPreviewRequest struct {
	AssetCount   int    `json:"asset_count"`
	BillingCycle string `json:"billing_cycle"`
}

// PricingPreview is public: it prices a hypothetical asset count without
// touching any subscription.
func (s *Server) PricingPreview(c *gin.Context) {
	var req pricingPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.AssetCount < 1 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	interval := pricing.IntervalMonthly
	if strings.TrimSpace(req.BillingCycle) == string(subscriptiondomain.BillingCycleAnnual) {
		interval = pricing.IntervalAnnual
	}

	table := s.tiers.Tiers()
	quote, err := pricing.Calculate(req.AssetCount, interval, table)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if quote == nil {
		AbortWithError(c, subscriptiondomain.ErrCustomPricingRequired)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"pricing":           quote,
		"next_tier_savings": pricing.NextTierSavings(req.AssetCount, table),
	})
}

type createCheckoutRequest struct {
	AssetCount   int    `json:"asset_count"`
	BillingCycle string `json:"billing_cycle"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	identity := s.identity(c)

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cycle := subscriptiondomain.BillingCycleMonthly
	if strings.TrimSpace(req.BillingCycle) == string(subscriptiondomain.BillingCycleAnnual) {
		cycle = subscriptiondomain.BillingCycleAnnual
	}

	session, err := s.subscriptionSvc.CreateCheckout(c.Request.Context(), subscriptiondomain.CreateCheckoutRequest{
		OrgID:        identity.OrgID,
		UserID:       identity.UserID,
		AssetCount:   req.AssetCount,
		BillingCycle: cycle,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": session.SessionID,
		"url":        session.URL,
	})
}

type updateAssetCountRequest struct {
	AssetCount int `json:"asset_count"`
}

func (s *Server) UpdateAssetCount(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateAssetCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.subscriptionSvc.UpdateAssetCount(c.Request.Context(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: req.AssetCount,
		ActorID:    s.identity(c).UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"asset_count": resp.AssetCount,
		"pricing":     resp.Pricing,
		"volume_tier": resp.VolumeTier,
		"billing": gin.H{
			"cost_difference": resp.Billing.CostDifferenceMinor,
			"charge_amount":   resp.Billing.ChargeAmountMinor,
			"is_upgrade":      resp.Billing.IsUpgrade,
			"invoice_id":      resp.Billing.InvoiceID,
		},
		"message": resp.Message,
	})
}

func (s *Server) GetSubscription(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	overview, err := s.subscriptionSvc.GetOverview(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"subscription":       overview.Subscription,
		"pricing":            overview.Pricing,
		"next_tier_savings":  overview.NextTierSavings,
		"provisioned_assets": overview.ProvisionedAssets,
	})
}

func (s *Server) ListSubscriptionInvoices(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoices, err := s.subscriptionSvc.ListInvoices(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "invoices": invoices})
}

func (s *Server) ListUsageHistory(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := s.subscriptionSvc.ListUsageHistory(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": entries})
}
