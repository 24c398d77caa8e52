package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRole reports whether role is one of the three known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManageBilling reports whether the role may change subscriptions.
func CanManageBilling(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrSlugTaken            = errors.New("slug_taken")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrForbidden            = errors.New("forbidden")
)

type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Service interface {
	// Create registers the organization, makes the creator its owner, and
	// seeds the free subscription in the same transaction.
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, orgID snowflake.ID) (*OrganizationResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListResponseItem, error)
	AddMember(ctx context.Context, actorID, orgID snowflake.ID, req AddMemberRequest) error
	MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error)
}
