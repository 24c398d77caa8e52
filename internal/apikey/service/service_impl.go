package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	"github.com/maintly/maintly/internal/clock"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "mk_live_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
	Orgs  organizationdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  apikeydomain.Repository
	orgs  organizationdomain.Repository
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		orgs:  p.Orgs,
	}
}

func (s *Service) Create(ctx context.Context, orgID, userID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if orgID == 0 || userID == 0 {
		return nil, apikeydomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	plain, hash, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Name:      name,
		KeyHash:   hash,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created",
		zap.Int64("org_id", int64(orgID)),
		zap.Int64("key_id", int64(key.ID)),
	)

	return &apikeydomain.SecretResponse{ID: key.ID.String(), APIKey: plain}, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]apikeydomain.Response, error) {
	keys, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(keys))
	for i := range keys {
		resp = append(resp, apikeydomain.Response{
			ID:        keys[i].ID.String(),
			Name:      keys[i].Name,
			CreatedAt: keys[i].CreatedAt,
			RevokedAt: keys[i].RevokedAt,
		})
	}
	return resp, nil
}

func (s *Service) Revoke(ctx context.Context, orgID, keyID snowflake.ID) error {
	key, err := s.repo.FindByID(ctx, s.db, orgID, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}
	return s.repo.Revoke(ctx, s.db, orgID, keyID, s.clock.Now())
}

func (s *Service) Authenticate(ctx context.Context, rawKey string) (*apikeydomain.Identity, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" || !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return nil, apikeydomain.ErrUnauthenticated
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked(s.clock.Now()) {
		return nil, apikeydomain.ErrUnauthenticated
	}

	role, err := s.orgs.GetMemberRole(ctx, key.OrgID, key.UserID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		// The key's owner left the organization; the key dies with them.
		return nil, apikeydomain.ErrUnauthenticated
	}

	return &apikeydomain.Identity{
		OrgID:  key.OrgID,
		UserID: key.UserID,
		Role:   role,
	}, nil
}

func generateAPIKey() (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	plain := apiKeyPrefix + hex.EncodeToString(secret)
	return plain, apikeydomain.HashAPIKey(plain), nil
}
