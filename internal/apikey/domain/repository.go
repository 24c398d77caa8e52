package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	FindByID(ctx context.Context, db *gorm.DB, orgID, keyID snowflake.ID) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]APIKey, error)
	Revoke(ctx context.Context, db *gorm.DB, orgID, keyID snowflake.ID, at time.Time) error
}
