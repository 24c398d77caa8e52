package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/organization/domain"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"github.com/maintly/maintly/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	subs  subscriptiondomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(
	gdb *gorm.DB,
	log *zap.Logger,
	repo domain.Repository,
	subs subscriptiondomain.Repository,
	genID *snowflake.Node,
	clk clock.Clock,
) domain.Service {
	return &service{
		db:    gdb,
		log:   log.Named("organization.service"),
		repo:  repo,
		subs:  subs,
		genID: genID,
		clock: clk,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}

		if err := repo.AddMember(ctx, domain.Member{
			OrgID:     org.ID,
			UserID:    userID,
			Role:      domain.RoleOwner,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		// Every organization starts on the free plan.
		free := subscriptiondomain.NewFreeSubscription(s.genID.Generate(), org.ID, now)
		return s.subs.Insert(ctx, tx, free)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.Int64("org_id", int64(org.ID)),
		zap.String("slug", org.Slug),
	)

	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}, nil
}

func (s *service) GetByID(ctx context.Context, orgID snowflake.ID) (*domain.OrganizationResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrOrganizationNotFound
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}

	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}, nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) AddMember(ctx context.Context, actorID, orgID snowflake.ID, req domain.AddMemberRequest) error {
	if actorID == 0 || orgID == 0 {
		return domain.ErrInvalidUser
	}
	if !domain.ValidRole(req.Role) || req.Role == domain.RoleOwner {
		return domain.ErrInvalidRole
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return domain.ErrInvalidUser
	}

	actorRole, err := s.repo.GetMemberRole(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !domain.CanManageBilling(actorRole) {
		return domain.ErrForbidden
	}

	err = s.repo.AddMember(ctx, domain.Member{
		OrgID:     orgID,
		UserID:    userID,
		Role:      req.Role,
		CreatedAt: s.clock.Now(),
	})
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrInvalidUser
	}
	return err
}

func (s *service) MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	return s.repo.GetMemberRole(ctx, orgID, userID)
}
