package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
)

var _ DraftStore = (*RedisDraftRepository)(nil)
var _ DraftStore = (*MemoryDraftRepository)(nil)

func TestMemoryDraftRepositoryMissingDraft(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	draft, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestMemoryDraftRepositoryUpdateStartsEmptyAndPersists(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	ctx := context.Background()

	updated, err := repo.Update(ctx, "user-1", func(d *models.Draft) error {
		assert.Empty(t, d.PendingFiles)
		d.PendingFiles = append(d.PendingFiles, models.PendingFile{ID: "f1", Name: "scan.pdf"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", updated.UserID)
	assert.False(t, updated.UpdatedAt.IsZero())

	stored, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored.PendingFiles, 1)

	stored.PendingFiles[0].Name = "mutated"
	again, _ := repo.Get(ctx, "user-1")
	assert.Equal(t, "scan.pdf", again.PendingFiles[0].Name)
}

func TestMemoryDraftRepositoryUpdateErrorLeavesDraftUntouched(t *testing.T) {
	repo := NewMemoryDraftRepository(0)
	ctx := context.Background()
	_, err := repo.Update(ctx, "user-1", func(d *models.Draft) error {
		d.PendingFiles = append(d.PendingFiles, models.PendingFile{ID: "f1"})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, "user-1", func(d *models.Draft) error {
		d.PendingFiles = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, _ := repo.Get(ctx, "user-1")
	assert.Len(t, stored.PendingFiles, 1)
}

func TestMemoryDraftRepositoryExpires(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Minute)
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, err := repo.Update(context.Background(), "user-1", func(*models.Draft) error { return nil })
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	draft, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestMemoryDraftRepositoryDelete(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	ctx := context.Background()
	_, _ = repo.Update(ctx, "user-1", func(*models.Draft) error { return nil })
	require.NoError(t, repo.Delete(ctx, "user-1"))
	draft, _ := repo.Get(ctx, "user-1")
	assert.Nil(t, draft)
}

func TestMemoryDraftRepositoryConcurrentUpdates(t *testing.T) {
	repo := NewMemoryDraftRepository(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, "user-1", func(d *models.Draft) error {
				d.PendingFiles = append(d.PendingFiles, models.PendingFile{})
				return nil
			})
		}()
	}
	wg.Wait()

	draft, _ := repo.Get(ctx, "user-1")
	assert.Len(t, draft.PendingFiles, 20)
}

func TestDraftKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "mtb:draft:user-1", draftKey("user-1"))
}
