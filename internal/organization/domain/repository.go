package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	AddMember(ctx context.Context, member Member) error
	// GetMemberRole returns "" when the user is not a member.
	GetMemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
}
