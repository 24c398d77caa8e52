package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/maintly/maintly/internal/asset/domain"
	"github.com/maintly/maintly/internal/clock"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"go.uber.org/fx"
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

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Subs  subscriptiondomain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("asset.service"),
		repo:  p.Repo,
		subs:  p.Subs,
		genID: p.GenID,
		clock: p.Clock,
	}
}

// CreateAsset provisions an asset under the subscription's ceiling. The row
// lock on the subscription serializes concurrent creations so the count
// cannot race past the limit.
func (s *service) CreateAsset(ctx context.Context, orgID snowflake.ID, req domain.CreateAssetRequest) (*domain.Asset, error) {
	name := strings.TrimSpace(req.Name)
	if orgID == 0 || name == "" {
		return nil, domain.ErrInvalidAsset
	}
	tag := strings.TrimSpace(req.Tag)

	now := s.clock.Now()
	asset := &domain.Asset{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Tag:       tag,
		Status:    domain.AssetStatusActive,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := s.subs.FindActiveByOrgIDForUpdate(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		provisioned, err := s.repo.CountProvisioned(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if provisioned+1 > sub.AssetLimit {
			return subscriptiondomain.ErrLimitExceeded
		}

		if tag != "" {
			existing, err := s.repo.FindAssetByTag(ctx, tx, orgID, tag)
			if err != nil {
				return err
			}
			if existing != nil {
				return domain.ErrTagTaken
			}
		}

		return s.repo.InsertAsset(ctx, tx, asset)
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *service) GetAsset(ctx context.Context, orgID, assetID snowflake.ID) (*domain.Asset, error) {
	asset, err := s.repo.GetAsset(ctx, s.db, orgID, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ErrAssetNotFound
	}
	return asset, nil
}

func (s *service) ListAssets(ctx context.Context, orgID snowflake.ID) ([]domain.Asset, error) {
	return s.repo.ListAssets(ctx, s.db, orgID)
}

func (s *service) UpdateAsset(ctx context.Context, orgID, assetID snowflake.ID, req domain.UpdateAssetRequest) (*domain.Asset, error) {
	asset, err := s.repo.GetAsset(ctx, s.db, orgID, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ErrAssetNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidAsset
		}
		asset.Name = name
	}
	if req.Tag != nil {
		tag := strings.TrimSpace(*req.Tag)
		if tag != "" && tag != asset.Tag {
			existing, err := s.repo.FindAssetByTag(ctx, s.db, orgID, tag)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != asset.ID {
				return nil, domain.ErrTagTaken
			}
		}
		asset.Tag = tag
	}
	if req.Status != nil {
		if !domain.ValidAssetStatus(*req.Status) {
			return nil, domain.ErrInvalidAsset
		}
		asset.Status = *req.Status
	}

	if err := s.repo.UpdateAsset(ctx, s.db, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *service) CreateIssue(ctx context.Context, orgID, reportedBy snowflake.ID, req domain.CreateIssueRequest) (*domain.Issue, error) {
	title := strings.TrimSpace(req.Title)
	if orgID == 0 || title == "" {
		return nil, domain.ErrInvalidIssue
	}

	assetID, err := snowflake.ParseString(strings.TrimSpace(req.AssetID))
	if err != nil || assetID == 0 {
		return nil, domain.ErrInvalidIssue
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	if !domain.ValidSeverity(severity) {
		return nil, domain.ErrInvalidIssue
	}

	asset, err := s.repo.GetAsset(ctx, s.db, orgID, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ErrAssetNotFound
	}

	now := s.clock.Now()
	issue := &domain.Issue{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		AssetID:    assetID,
		Title:      title,
		Severity:   severity,
		Status:     domain.IssueStatusOpen,
		ReportedBy: reportedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertIssue(ctx, s.db, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *service) ListIssues(ctx context.Context, orgID, assetID snowflake.ID) ([]domain.Issue, error) {
	return s.repo.ListIssues(ctx, s.db, orgID, assetID)
}

func (s *service) UpdateIssue(ctx context.Context, orgID, issueID snowflake.ID, req domain.UpdateIssueRequest) (*domain.Issue, error) {
	issue, err := s.repo.GetIssue(ctx, s.db, orgID, issueID)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, domain.ErrIssueNotFound
	}

	if req.Status != nil {
		if !domain.ValidIssueStatus(*req.Status) {
			return nil, domain.ErrInvalidIssue
		}
		issue.Status = *req.Status
	}
	if req.Severity != nil {
		if !domain.ValidSeverity(*req.Severity) {
			return nil, domain.ErrInvalidIssue
		}
		issue.Severity = *req.Severity
	}

	if err := s.repo.UpdateIssue(ctx, s.db, issue); err != nil {
		return nil, err
	}
	return issue, nil
}
