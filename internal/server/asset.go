package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
)

func (s *Server) ListAssets(c *gin.Context) {
	identity := s.identity(c)

	assets, err := s.assetSvc.ListAssets(c.Request.Context(), identity.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "assets": assets})
}

func (s *Server) CreateAsset(c *gin.Context) {
	identity := s.identity(c)

	var req assetdomain.CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	asset, err := s.assetSvc.CreateAsset(c.Request.Context(), identity.OrgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "asset": asset})
}

func (s *Server) GetAsset(c *gin.Context) {
	identity := s.identity(c)

	assetID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || assetID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	asset, err := s.assetSvc.GetAsset(c.Request.Context(), identity.OrgID, assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "asset": asset})
}

func (s *Server) UpdateAsset(c *gin.Context) {
	identity := s.identity(c)

	assetID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || assetID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req assetdomain.UpdateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	asset, err := s.assetSvc.UpdateAsset(c.Request.Context(), identity.OrgID, assetID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "asset": asset})
}

func (s *Server) ListIssues(c *gin.Context) {
	identity := s.identity(c)

	var assetID snowflake.ID
	if raw := strings.TrimSpace(c.Query("asset_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		assetID = parsed
	}

	issues, err := s.assetSvc.ListIssues(c.Request.Context(), identity.OrgID, assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "issues": issues})
}

func (s *Server) CreateIssue(c *gin.Context) {
	identity := s.identity(c)

	var req assetdomain.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	issue, err := s.assetSvc.CreateIssue(c.Request.Context(), identity.OrgID, identity.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "issue": issue})
}

func (s *Server) UpdateIssue(c *gin.Context) {
	identity := s.identity(c)

	issueID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || issueID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req assetdomain.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	issue, err := s.assetSvc.UpdateIssue(c.Request.Context(), identity.OrgID, issueID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "issue": issue})
}
