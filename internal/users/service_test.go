package users

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store/memory"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/testutil"
)

func newService() (*Service, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC))
	return NewService(memory.New()).WithClock(clock.Now), clock
}

func TestUpsert(t *testing.T) {
	svc, clock := newService()
	ctx := testutil.TestContext(t)

	first, err := svc.Upsert(ctx, UpsertRequest{FirebaseUID: "uid-1", Email: "a@example.com", DisplayName: "A"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, first.Role)

	_, err = svc.SetRole(ctx, first.ID, "super_admin")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := svc.Upsert(ctx, UpsertRequest{FirebaseUID: "uid-1", Email: "new@example.com", DisplayName: "A2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)
	assert.Equal(t, domain.RoleSuperAdmin, second.Role)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsert_Validation(t *testing.T) {
	svc, _ := newService()
	ctx := testutil.TestContext(t)

	_, err := svc.Upsert(ctx, UpsertRequest{Email: "a@example.com"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.Upsert(ctx, UpsertRequest{FirebaseUID: "uid", Email: "a@example.com", Role: "owner"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSetRoleAndDelete(t *testing.T) {
	svc, _ := newService()
	ctx := testutil.TestContext(t)

	u, err := svc.Upsert(ctx, UpsertRequest{FirebaseUID: "uid-1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.SetRole(ctx, u.ID, "root")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.SetRole(ctx, uuid.New(), "user")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, svc.Delete(ctx, u.ID))
	assert.True(t, errors.Is(svc.Delete(ctx, u.ID), domain.ErrNotFound))
}
