package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/organization/domain"
	"github.com/maintly/maintly/internal/organization/repository"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	subscriptionrepo "github.com/maintly/maintly/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
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
		&domain.Organization{},
		&domain.Member{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.UsageHistoryEntry{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := NewService(
		db,
		zap.NewNop(),
		repository.NewRepository(db),
		subscriptionrepo.Provide(),
		node,
		clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	)
	return svc, db, node
}

func TestCreate_SeedsFreeSubscription(t *testing.T) {
	svc, db, node := newTestService(t)
	userID := node.Generate()

	resp, err := svc.Create(context.Background(), userID, domain.CreateOrganizationRequest{Name: "Acme Facilities"})
	require.NoError(t, err)
	assert.Equal(t, "acme-facilities", resp.Slug)

	orgID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	sub, err := subscriptionrepo.Provide().FindActiveByOrgID(context.Background(), db, orgID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, sub.IsFree())
	assert.Equal(t, subscriptiondomain.DefaultFreeAssetLimit, sub.AssetLimit)
	assert.Equal(t, 0, sub.CurrentAssetCount)

	role, err := svc.MemberRole(context.Background(), orgID, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)
}

func TestCreate_DuplicateSlugRejected(t *testing.T) {
	svc, _, node := newTestService(t)
	userID := node.Generate()

	_, err := svc.Create(context.Background(), userID, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), userID, domain.CreateOrganizationRequest{Name: "Acme"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	svc, _, node := newTestService(t)

	_, err := svc.Create(context.Background(), node.Generate(), domain.CreateOrganizationRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestAddMember_RequiresAdminRole(t *testing.T) {
	svc, _, node := newTestService(t)
	ownerID := node.Generate()
	memberID := node.Generate()
	outsiderID := node.Generate()

	resp, err := svc.Create(context.Background(), ownerID, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	orgID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(context.Background(), ownerID, orgID, domain.AddMemberRequest{
		UserID: memberID.String(),
		Role:   domain.RoleMember,
	}))

	err = svc.AddMember(context.Background(), memberID, orgID, domain.AddMemberRequest{
		UserID: outsiderID.String(),
		Role:   domain.RoleMember,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = svc.AddMember(context.Background(), ownerID, orgID, domain.AddMemberRequest{
		UserID: outsiderID.String(),
		Role:   domain.RoleOwner,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestListByUser(t *testing.T) {
	svc, _, node := newTestService(t)
	userID := node.Generate()

	_, err := svc.Create(context.Background(), userID, domain.CreateOrganizationRequest{Name: "First Org"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), userID, domain.CreateOrganizationRequest{Name: "Second Org"})
	require.NoError(t, err)

	items, err := svc.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.RoleOwner, items[0].Role)
}
