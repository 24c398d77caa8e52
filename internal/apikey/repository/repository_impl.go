package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	"gorm.io/gorm"
)

const apiKeyColumns = `id, org_id, user_id, name, key_hash, created_at, revoked_at`

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, org_id, user_id, name, key_hash, created_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.OrgID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.CreatedAt,
		key.RevokedAt,
	).Error
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`,
		keyHash,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, keyID snowflake.ID) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE org_id = ? AND id = ?`,
		orgID,
		keyID,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE org_id = ? ORDER BY created_at DESC`,
		orgID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, orgID, keyID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET revoked_at = ? WHERE org_id = ? AND id = ? AND revoked_at IS NULL`,
		at,
		orgID,
		keyID,
	).Error
}
