package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/storage"
)

func seed(t *testing.T) (*InMemoryUserRepository, *models.User) {
	t.Helper()
	repo := NewUserRepository(zap.NewNop().Sugar())
	u := &models.User{
		ID:    "u-1",
		Email: "a@b.com",
		SessionRecords: []models.RefreshTokenRecord{
			{Family: "fam", Version: "v1", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return repo, u
}

func TestInMemory_CreateDuplicateEmail(t *testing.T) {
	repo, _ := seed(t)
	err := repo.Create(context.Background(), &models.User{ID: "u-2", Email: "a@b.com"})
	require.ErrorIs(t, err, storage.ErrUserExists)
}

func TestInMemory_ReadsAreCopies(t *testing.T) {
	repo, _ := seed(t)
	ctx := context.Background()

	u, err := repo.FindByID(ctx, "u-1")
	require.NoError(t, err)
	u.SessionRecords[0].Version = "tampered"

	again, err := repo.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "v1", again.SessionRecords[0].Version)
}

func TestInMemory_RotateSessionOnlyOnce(t *testing.T) {
	repo, _ := seed(t)
	ctx := context.Background()
	next := models.RefreshTokenRecord{Family: "fam", Version: "v2", ExpiresAt: time.Now().Add(time.Hour)}

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.RotateSession(ctx, "u-1", "fam", "v1", next)
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, storage.ErrSessionConflict)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 7, lost)
}

func TestInMemory_DeleteFamilyAndSave(t *testing.T) {
	repo, u := seed(t)
	ctx := context.Background()

	require.NoError(t, repo.DeleteSessionFamily(ctx, u.ID, "fam"))
	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SessionRecords)

	require.ErrorIs(t, repo.Save(ctx, &models.User{ID: "ghost"}), storage.ErrUserNotFound)
}
