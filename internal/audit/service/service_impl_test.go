package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/stockbook/internal/apperror"
	auditdomain "github.com/smallbiznis/stockbook/internal/audit/domain"
	"github.com/smallbiznis/stockbook/internal/audit/repository"
	"github.com/smallbiznis/stockbook/internal/audit/service"
	"github.com/smallbiznis/stockbook/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (auditdomain.Service, *storetest.Store) {
	t.Helper()
	s := storetest.Open(t)
	return service.NewService(service.Params{
		DB:    s.DB,
		Log:   s.Log,
		Clock: s.Clock,
		Repo:  repository.Provide(),
	}), s
}

func TestRecordMasksCredentials(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	id := int64(1)

	require.NoError(t, svc.Record(ctx, auditdomain.RecordRequest{
		ActorUserID: &id,
		Actor:       "admin",
		Action:      auditdomain.ActionUserCreated,
		TargetType:  "user",
		TargetID:    "2",
		Metadata:    map[string]any{"role": "seller", "pin": "seller2024", "attempts": 2},
	}))

	entries, err := svc.List(ctx, auditdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "admin", e.Actor)
	require.NotNil(t, e.ActorUserID)
	assert.Equal(t, int64(1), *e.ActorUserID)
	assert.Equal(t, "user", e.TargetType)
	assert.Equal(t, "2", e.TargetID)
	assert.Equal(t, "seller", e.Metadata["role"])
	assert.Equal(t, "****24", e.Metadata["pin"])
	assert.Equal(t, float64(2), e.Metadata["attempts"])
	assert.True(t, e.CreatedAt.Equal(storetest.Epoch))
}

func TestRecordDefaults(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	err := svc.Record(ctx, auditdomain.RecordRequest{Action: "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, svc.Record(ctx, auditdomain.RecordRequest{Action: auditdomain.ActionBackupCreated}))
	entries, err := svc.List(ctx, auditdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].Actor)
	assert.Nil(t, entries[0].ActorUserID)
	assert.Nil(t, entries[0].Metadata)
}

func TestListFiltersNewestFirst(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	for _, rec := range []auditdomain.RecordRequest{
		{Actor: "admin", Action: auditdomain.ActionFxRateSet},
		{Actor: "bob", Action: auditdomain.ActionLoginFailed},
		{Actor: "admin", Action: auditdomain.ActionBackupCreated},
	} {
		require.NoError(t, svc.Record(ctx, rec))
		s.Clock.Advance(time.Hour)
	}

	all, err := svc.List(ctx, auditdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, auditdomain.ActionBackupCreated, all[0].Action)
	assert.Equal(t, auditdomain.ActionFxRateSet, all[2].Action)

	admin, err := svc.List(ctx, auditdomain.ListRequest{Actor: "admin", Limit: 1})
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, auditdomain.ActionBackupCreated, admin[0].Action)

	from := storetest.Epoch.Add(30 * time.Minute)
	to := storetest.Epoch.Add(2 * time.Hour)
	window, err := svc.List(ctx, auditdomain.ListRequest{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "bob", window[0].Actor)

	_, err = svc.List(ctx, auditdomain.ListRequest{From: &to, To: &from})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAuditLogIsAppendOnly(t *testing.T) {
	svc, s := newService(t)
	require.NoError(t, svc.Record(context.Background(), auditdomain.RecordRequest{Action: auditdomain.ActionBackupCreated}))

	err := s.DB.Exec(`DELETE FROM audit_log`).Error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}
