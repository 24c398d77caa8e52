package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
	"gorm.io/gorm"
)

const assetColumns = `id, org_id, name, tag, status, metadata, created_at, updated_at`
const issueColumns = `id, org_id, asset_id, title, severity, status, reported_by, created_at, updated_at`

type repo struct{}

func Provide() assetdomain.Repository {
	return &repo{}
}

func (r *repo) InsertAsset(ctx context.Context, db *gorm.DB, asset *assetdomain.Asset) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO assets (id, org_id, name, tag, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.OrgID,
		asset.Name,
		asset.Tag,
		asset.Status,
		asset.Metadata,
		asset.CreatedAt,
		asset.UpdatedAt,
	).Error
}

func (r *repo) GetAsset(ctx context.Context, db *gorm.DB, orgID, assetID snowflake.ID) (*assetdomain.Asset, error) {
	var asset assetdomain.Asset
	err := db.WithContext(ctx).Raw(
		`SELECT `+assetColumns+` FROM assets WHERE org_id = ? AND id = ?`,
		orgID,
		assetID,
	).Scan(&asset).Error
	if err != nil {
		return nil, err
	}
	if asset.ID == 0 {
		return nil, nil
	}
	return &asset, nil
}

func (r *repo) FindAssetByTag(ctx context.Context, db *gorm.DB, orgID snowflake.ID, tag string) (*assetdomain.Asset, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}
	var asset assetdomain.Asset
	err := db.WithContext(ctx).Raw(
		`SELECT `+assetColumns+` FROM assets WHERE org_id = ? AND tag = ?`,
		orgID,
		tag,
	).Scan(&asset).Error
	if err != nil {
		return nil, err
	}
	if asset.ID == 0 {
		return nil, nil
	}
	return &asset, nil
}

func (r *repo) ListAssets(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]assetdomain.Asset, error) {
	var assets []assetdomain.Asset
	err := db.WithContext(ctx).Raw(
		`SELECT `+assetColumns+` FROM assets WHERE org_id = ? ORDER BY created_at ASC, id ASC`,
		orgID,
	).Scan(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *repo) UpdateAsset(ctx context.Context, db *gorm.DB, asset *assetdomain.Asset) error {
	return db.WithContext(ctx).Exec(
		`UPDATE assets SET name = ?, tag = ?, status = ?, metadata = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND id = ?`,
		asset.Name,
		asset.Tag,
		asset.Status,
		asset.Metadata,
		asset.OrgID,
		asset.ID,
	).Error
}

func (r *repo) CountProvisioned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error) {
	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM assets WHERE org_id = ? AND status <> 'retired'`,
		orgID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) InsertIssue(ctx context.Context, db *gorm.DB, issue *assetdomain.Issue) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO issues (id, org_id, asset_id, title, severity, status, reported_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID,
		issue.OrgID,
		issue.AssetID,
		issue.Title,
		issue.Severity,
		issue.Status,
		issue.ReportedBy,
		issue.CreatedAt,
		issue.UpdatedAt,
	).Error
}

func (r *repo) GetIssue(ctx context.Context, db *gorm.DB, orgID, issueID snowflake.ID) (*assetdomain.Issue, error) {
	var issue assetdomain.Issue
	err := db.WithContext(ctx).Raw(
		`SELECT `+issueColumns+` FROM issues WHERE org_id = ? AND id = ?`,
		orgID,
		issueID,
	).Scan(&issue).Error
	if err != nil {
		return nil, err
	}
	if issue.ID == 0 {
		return nil, nil
	}
	return &issue, nil
}

func (r *repo) ListIssues(ctx context.Context, db *gorm.DB, orgID snowflake.ID, assetID snowflake.ID) ([]assetdomain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE org_id = ?`
	args := []interface{}{orgID}
	if assetID != 0 {
		query += ` AND asset_id = ?`
		args = append(args, assetID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var issues []assetdomain.Issue
	err := db.WithContext(ctx).Raw(query, args...).Scan(&issues).Error
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *repo) UpdateIssue(ctx context.Context, db *gorm.DB, issue *assetdomain.Issue) error {
	return db.WithContext(ctx).Exec(
		`UPDATE issues SET title = ?, severity = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND id = ?`,
		issue.Title,
		issue.Severity,
		issue.Status,
		issue.OrgID,
		issue.ID,
	).Error
}
