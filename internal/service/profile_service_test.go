package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actpath-backend/internal/repository"
	"actpath-backend/internal/testutil"
)

func TestProfileService(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	client := testutil.CreateClient(t, gdb, "client@example.com")

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &profileService{
		userRepo: repository.NewUserRepository(gdb),
		now:      func() time.Time { return now },
	}

	t.Run("get", func(t *testing.T) {
		u, err := svc.GetProfile(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, "client@example.com", u.Email)

		_, err = svc.GetProfile(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		name, phone := "Renamed", " 555-0100 "
		u, err := svc.UpdateProfile(ctx, client.ID, ProfileUpdate{Name: &name, PhoneNumber: &phone})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", u.Name)
		assert.Equal(t, "555-0100", u.PhoneNumber)
		assert.Equal(t, "client@example.com", u.Email)
		assert.Equal(t, 1, u.CurrentSession)
	})

	t.Run("consent stamps timestamp", func(t *testing.T) {
		yes := true
		u, err := svc.UpdateProfile(ctx, client.ID, ProfileUpdate{HasConsented: &yes})
		require.NoError(t, err)
		assert.True(t, u.HasConsented)
		require.NotNil(t, u.ConsentTimestamp)
		assert.True(t, now.Equal(*u.ConsentTimestamp))

		no := false
		u, err = svc.UpdateProfile(ctx, client.ID, ProfileUpdate{HasConsented: &no})
		require.NoError(t, err)
		assert.False(t, u.HasConsented)
		assert.Nil(t, u.ConsentTimestamp)
	})

	t.Run("validation and missing user", func(t *testing.T) {
		blank := "  "
		_, err := svc.UpdateProfile(ctx, client.ID, ProfileUpdate{Name: &blank})
		assert.ErrorIs(t, err, ErrValidation)

		name := "Ghost"
		_, err = svc.UpdateProfile(ctx, 999, ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty update returns profile", func(t *testing.T) {
		u, err := svc.UpdateProfile(ctx, client.ID, ProfileUpdate{})
		require.NoError(t, err)
		assert.Equal(t, client.ID, u.ID)
	})
}
