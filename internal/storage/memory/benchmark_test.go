package memory

import (
	"context"
	"fmt"
	"testing"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

func BenchmarkMemoryStore_ListAttachmentIDs(b *testing.B) {
	store := NewStore()
	for i := 0; i < 1000; i++ {
		seedVersions(b, store, fmt.Sprintf("lineage-%d", i), 5)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.ListAttachmentIDs(ctx)
	}
}

func BenchmarkMemoryStore_InTxDelete(b *testing.B) {
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		store := NewStore()
		for j := 0; j < 50; j++ {
			seedVersions(b, store, fmt.Sprintf("lineage-%d", j), 3)
		}
		b.StartTimer()

		store.InTx(ctx, func(tx storage.ContentStore) error {
			for j := 0; j < 50; j++ {
				if err := tx.DeleteVersion(ctx, &domain.Attachment{ID: fmt.Sprintf("lineage-%d-v1", j)}); err != nil {
					return err
				}
			}
			return nil
		})
	}
}
