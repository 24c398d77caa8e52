package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
)

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, err := gatewayUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req organizationdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "organization": resp})
}

func (s *Server) ListOrganizations(c *gin.Context) {
	userID, err := gatewayUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.organizationSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "organizations": items})
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "organization": resp})
}

func (s *Server) AddMember(c *gin.Context) {
	orgID, err := s.orgFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req organizationdomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.organizationSvc.AddMember(c.Request.Context(), s.identity(c).UserID, orgID, req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true})
}
