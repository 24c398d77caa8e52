package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrAssetNotFound = errors.New("asset_not_found")
	ErrIssueNotFound = errors.New("issue_not_found")
	ErrInvalidAsset  = errors.New("invalid_asset")
	ErrInvalidIssue  = errors.New("invalid_issue")
	ErrTagTaken      = errors.New("tag_taken")
)

type CreateAssetRequest struct {
	Name     string            `json:"name"`
	Tag      string            `json:"tag"`
	Metadata datatypes.JSONMap `json:"metadata"`
}

type UpdateAssetRequest struct {
	Name   *string      `json:"name"`
	Tag    *string      `json:"tag"`
	Status *AssetStatus `json:"status"`
}

type CreateIssueRequest struct {
	AssetID  string        `json:"asset_id"`
	Title    string        `json:"title"`
	Severity IssueSeverity `json:"severity"`
}

type UpdateIssueRequest struct {
	Status   *IssueStatus   `json:"status"`
	Severity *IssueSeverity `json:"severity"`
}

type Service interface {
	CreateAsset(ctx context.Context, orgID snowflake.ID, req CreateAssetRequest) (*Asset, error)
	GetAsset(ctx context.Context, orgID, assetID snowflake.ID) (*Asset, error)
	ListAssets(ctx context.Context, orgID snowflake.ID) ([]Asset, error)
	UpdateAsset(ctx context.Context, orgID, assetID snowflake.ID, req UpdateAssetRequest) (*Asset, error)

	CreateIssue(ctx context.Context, orgID, reportedBy snowflake.ID, req CreateIssueRequest) (*Issue, error)
	ListIssues(ctx context.Context, orgID, assetID snowflake.ID) ([]Issue, error)
	UpdateIssue(ctx context.Context, orgID, issueID snowflake.ID, req UpdateIssueRequest) (*Issue, error)
}
