package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	"github.com/maintly/maintly/internal/apikey/repository"
	"github.com/maintly/maintly/internal/clock"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
	organizationrepo "github.com/maintly/maintly/internal/organization/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (apikeydomain.Service, *snowflake.Node, snowflake.ID, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&apikeydomain.APIKey{},
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	orgs := organizationrepo.NewRepository(db)
	orgID := node.Generate()
	userID := node.Generate()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, orgs.CreateOrganization(context.Background(), organizationdomain.Organization{
		ID: orgID, Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, orgs.AddMember(context.Background(), organizationdomain.Member{
		OrgID: orgID, UserID: userID, Role: organizationdomain.RoleOwner, CreatedAt: now,
	}))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(now),
		Repo:  repository.Provide(),
		Orgs:  orgs,
	})
	return svc, node, orgID, userID
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _, orgID, userID := newTestService(t)

	secret, err := svc.Create(context.Background(), orgID, userID, apikeydomain.CreateRequest{Name: "ci"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, "mk_live_"))

	identity, err := svc.Authenticate(context.Background(), secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, orgID, identity.OrgID)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, organizationdomain.RoleOwner, identity.Role)
}

func TestAuthenticate_UnknownKeyRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "mk_live_"+strings.Repeat("ab", 32))
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)

	_, err = svc.Authenticate(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)
}

func TestRevokedKeyStopsAuthenticating(t *testing.T) {
	svc, _, orgID, userID := newTestService(t)

	secret, err := svc.Create(context.Background(), orgID, userID, apikeydomain.CreateRequest{Name: "ci"})
	require.NoError(t, err)

	keyID, err := snowflake.ParseString(secret.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), orgID, keyID))

	_, err = svc.Authenticate(context.Background(), secret.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)
}

func TestNonMemberKeyRejected(t *testing.T) {
	svc, node, orgID, _ := newTestService(t)

	// Key minted for a user who is not a member of the org.
	outsider := node.Generate()
	secret, err := svc.Create(context.Background(), orgID, outsider, apikeydomain.CreateRequest{Name: "stale"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), secret.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)
}
