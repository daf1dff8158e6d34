package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// fakeBlobs 记录被删除的文件路径
type fakeBlobs struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeBlobs) Remove(relPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, relPath)
	return nil
}

func setupStore(t *testing.T) (*Store, *fakeBlobs) {
	t.Helper()
	store, err := NewStore(Options{Driver: "sqlite", DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs := &fakeBlobs{}
	store.SetBlobStore(blobs)
	return store, blobs
}

func seedLineage(t *testing.T, s *Store, space, lineage string, versions int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveSpace(ctx, &domain.Space{Key: space, Name: space + " space", URLPath: "/spaces/" + space}))
	for v := 1; v <= versions; v++ {
		modified := time.Date(2024, 1, v, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveAttachment(ctx, &domain.Attachment{
			ID:          fmt.Sprintf("%s-v%d", lineage, v),
			LineageID:   lineage,
			SpaceKey:    space,
			Title:       lineage + ".png",
			Version:     v,
			Size:        int64(v * 100),
			ModifiedAt:  &modified,
			StoragePath: fmt.Sprintf("attachments/%s/%s/%d_%s.png", space, lineage, v, lineage),
		}))
	}
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(Options{Driver: "oracle", DSN: "x"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestStore_Health(t *testing.T) {
	store, _ := setupStore(t)
	assert.NoError(t, store.Health())
	assert.Equal(t, "sqlite", store.Driver())
}

func TestStore_Policies(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.GetPolicy(ctx, storage.SystemScope)
	assert.ErrorIs(t, err, storage.ErrPolicyNotFound)

	system := &domain.Policy{
		Mode:               domain.PolicyModeGlobal,
		AgeRule:            domain.AgeRule{Enabled: true, MaxDaysOld: 30},
		ReportEmailAddress: "admin@example.com",
		DeleteLimit:        10,
	}
	require.NoError(t, store.SavePolicy(ctx, storage.SystemScope, system))

	got, err := store.GetPolicy(ctx, storage.SystemScope)
	require.NoError(t, err)
	assert.Equal(t, system, got)

	// 覆盖保存
	system.ReportOnly = true
	require.NoError(t, store.SavePolicy(ctx, storage.SystemScope, system))
	got, err = store.GetPolicy(ctx, storage.SystemScope)
	require.NoError(t, err)
	assert.True(t, got.ReportOnly)

	_, err = store.GetPolicy(ctx, "DOC")
	assert.ErrorIs(t, err, storage.ErrPolicyNotFound)

	require.NoError(t, store.DeletePolicy(ctx, storage.SystemScope))
	assert.ErrorIs(t, store.DeletePolicy(ctx, storage.SystemScope), storage.ErrPolicyNotFound)
}

func TestStore_ContentQueries(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seedLineage(t, store, "DOC", "alpha", 3)
	seedLineage(t, store, "OPS", "beta", 1)

	keys, err := store.ListSpaceKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DOC", "OPS"}, keys)

	ids, err := store.ListAttachmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-v3", "beta-v1"}, ids)

	current, err := store.GetAttachment(ctx, "alpha-v3")
	require.NoError(t, err)
	require.NotNil(t, current.Space)
	assert.Equal(t, "DOC space", current.SpaceName())
	require.NotNil(t, current.ModifiedAt)

	prior, err := store.GetPriorVersions(ctx, current)
	require.NoError(t, err)
	require.Len(t, prior, 2)
	assert.Equal(t, 1, prior[0].Version)
	assert.Equal(t, 2, prior[1].Version)
	assert.EqualValues(t, 100, prior[0].Size)

	_, err = store.GetAttachment(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
}

func TestStore_DeleteVersion(t *testing.T) {
	store, blobs := setupStore(t)
	ctx := context.Background()
	seedLineage(t, store, "DOC", "alpha", 2)

	err := store.DeleteVersion(ctx, &domain.Attachment{ID: "alpha-v2"})
	assert.ErrorIs(t, err, storage.ErrNotPriorVersion)

	require.NoError(t, store.DeleteVersion(ctx, &domain.Attachment{ID: "alpha-v1"}))
	assert.Equal(t, []string{"attachments/DOC/alpha/1_alpha.png"}, blobs.removed)

	err = store.DeleteVersion(ctx, &domain.Attachment{ID: "alpha-v1"})
	assert.ErrorIs(t, err, storage.ErrAttachmentNotFound)
}

func TestStore_InTxCommit(t *testing.T) {
	store, blobs := setupStore(t)
	ctx := context.Background()
	seedLineage(t, store, "DOC", "alpha", 3)

	err := store.InTx(ctx, func(tx storage.ContentStore) error {
		current, err := tx.GetAttachment(ctx, "alpha-v3")
		if err != nil {
			return err
		}
		prior, err := tx.GetPriorVersions(ctx, current)
		if err != nil {
			return err
		}
		for i := range prior {
			if err := tx.DeleteVersion(ctx, &prior[i]); err != nil {
				return err
			}
		}
		// 事务内已不可见
		remaining, err := tx.GetPriorVersions(ctx, current)
		if err != nil {
			return err
		}
		if len(remaining) != 0 {
			return errors.New("deleted versions still visible")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, blobs.removed, 2)

	current, err := store.GetAttachment(ctx, "alpha-v3")
	require.NoError(t, err)
	prior, err := store.GetPriorVersions(ctx, current)
	require.NoError(t, err)
	assert.Empty(t, prior)
}

func TestStore_InTxRollback(t *testing.T) {
	store, blobs := setupStore(t)
	ctx := context.Background()
	seedLineage(t, store, "DOC", "alpha", 3)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx storage.ContentStore) error {
		if err := tx.DeleteVersion(ctx, &domain.Attachment{ID: "alpha-v1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, blobs.removed, "files must not be removed when the batch rolls back")

	_, err = store.GetAttachment(ctx, "alpha-v1")
	assert.NoError(t, err)
}
