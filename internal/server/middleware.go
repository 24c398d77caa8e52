package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	obscontext "github.com/maintly/maintly/internal/observability/context"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
)

const (
	contextIdentityKey = "identity"
	headerUserID       = "X-User-Id"
)

// APIKeyRequired authenticates the bearer API key and scopes the request to
// the key's organization.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.apiKeySvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextIdentityKey, identity)
		c.Set("org_id", identity.OrgID.String())
		c.Set("user_id", identity.UserID.String())

		ctx := obscontext.WithOrgID(c.Request.Context(), identity.OrgID.String())
		ctx = obscontext.WithActor(ctx, "api_key", identity.UserID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireBillingRole gates subscription-changing routes to owners and admins.
func (s *Server) RequireBillingRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := s.identity(c)
		if identity == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !organizationdomain.CanManageBilling(identity.Role) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) identity(c *gin.Context) *apikeydomain.Identity {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil
	}
	identity, ok := value.(*apikeydomain.Identity)
	if !ok {
		return nil
	}
	return identity
}

// orgFromPath parses :orgId and rejects access across organizations.
func (s *Server) orgFromPath(c *gin.Context) (snowflake.ID, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(c.Param("orgId")))
	if err != nil || orgID == 0 {
		return 0, ErrInvalidRequest
	}

	identity := s.identity(c)
	if identity == nil {
		return 0, ErrUnauthorized
	}
	if identity.OrgID != orgID {
		return 0, ErrForbidden
	}
	return orgID, nil
}

// gatewayUserID resolves the caller on unauthenticated bootstrap routes. The
// service runs behind a gateway that authenticates users and forwards the id.
func gatewayUserID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader(headerUserID))
	if raw == "" {
		return 0, ErrUnauthorized
	}
	userID, err := snowflake.ParseString(raw)
	if err != nil || userID == 0 {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
