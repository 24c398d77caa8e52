package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/maintly/maintly/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetOrganization(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, created_at, updated_at FROM organizations WHERE id = ?`,
		orgID,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO members (org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		member.OrgID,
		member.UserID,
		member.Role,
		member.CreatedAt,
	).Error
}

func (r *repository) GetMemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	var role string
	err := r.db.WithContext(ctx).Raw(
		`SELECT role FROM members WHERE org_id = ? AND user_id = ?`,
		orgID,
		userID,
	).Scan(&role).Error
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, o.created_at
		 FROM organizations o
		 JOIN members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
