package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAsset(ctx context.Context, db *gorm.DB, asset *Asset) error
	GetAsset(ctx context.Context, db *gorm.DB, orgID, assetID snowflake.ID) (*Asset, error)
	FindAssetByTag(ctx context.Context, db *gorm.DB, orgID snowflake.ID, tag string) (*Asset, error)
	ListAssets(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Asset, error)
	UpdateAsset(ctx context.Context, db *gorm.DB, asset *Asset) error
	// CountProvisioned counts non-retired assets. It is the billable floor
	// the subscription reconciler refuses to go below.
	CountProvisioned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error)

	InsertIssue(ctx context.Context, db *gorm.DB, issue *Issue) error
	GetIssue(ctx context.Context, db *gorm.DB, orgID, issueID snowflake.ID) (*Issue, error)
	ListIssues(ctx context.Context, db *gorm.DB, orgID snowflake.ID, assetID snowflake.ID) ([]Issue, error)
	UpdateIssue(ctx context.Context, db *gorm.DB, issue *Issue) error
}
