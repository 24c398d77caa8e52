package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
)

type createAPIKeyRequest struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

// CreateAPIKey is a bootstrap route: the very first key for an org cannot be
// minted with an API key, so the caller identity comes from the gateway and
// the role check runs against the membership table.
func (s *Server) CreateAPIKey(c *gin.Context) {
	userID, err := gatewayUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrgID))
	if err != nil || orgID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	role, err := s.organizationSvc.MemberRole(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !organizationdomain.CanManageBilling(role) {
		AbortWithError(c, ErrForbidden)
		return
	}

	secret, err := s.apiKeySvc.Create(c.Request.Context(), orgID, userID, apikeydomain.CreateRequest{Name: req.Name})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "key": secret})
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	identity := s.identity(c)

	keys, err := s.apiKeySvc.List(c.Request.Context(), identity.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	identity := s.identity(c)

	keyID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || keyID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), identity.OrgID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
