package sql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// currentVersionsQuery 每个附件只取版本号最大的一行
const currentVersionsQuery = `SELECT a.id FROM attachments a
WHERE NOT EXISTS (
	SELECT 1 FROM attachments newer
	WHERE newer.lineage_id = a.lineage_id AND newer.version > a.version
)
ORDER BY a.id`

// contentTx 在给定的 *gorm.DB（普通连接或事务）上执行内容操作
type contentTx struct {
	db      *gorm.DB
	removed []string // 已删除版本的文件路径
}

func (t *contentTx) ListSpaceKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := t.db.WithContext(ctx).Model(&domain.Space{}).Order("space_key").Pluck("space_key", &keys).Error
	return keys, err
}

func (t *contentTx) ListAttachmentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := t.db.WithContext(ctx).Raw(currentVersionsQuery).Scan(&ids).Error
	return ids, err
}

func (t *contentTx) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := t.db.WithContext(ctx).Preload("Space").First(&att, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (t *contentTx) GetPriorVersions(ctx context.Context, current *domain.Attachment) ([]domain.Attachment, error) {
	var prior []domain.Attachment
	err := t.db.WithContext(ctx).
		Preload("Space").
		Where("lineage_id = ? AND version < ?", current.LineageID, current.Version).
		Order("version").
		Find(&prior).Error
	return prior, err
}

func (t *contentTx) DeleteVersion(ctx context.Context, version *domain.Attachment) error {
	db := t.db.WithContext(ctx)

	var row domain.Attachment
	err := db.Select("id", "lineage_id", "version", "storage_path").First(&row, "id = ?", version.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrAttachmentNotFound
	}
	if err != nil {
		return err
	}

	var newer int64
	if err := db.Model(&domain.Attachment{}).
		Where("lineage_id = ? AND version > ?", row.LineageID, row.Version).
		Count(&newer).Error; err != nil {
		return err
	}
	if newer == 0 {
		return storage.ErrNotPriorVersion
	}

	result := db.Delete(&domain.Attachment{}, "id = ?", row.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAttachmentNotFound
	}
	if row.StoragePath != "" {
		t.removed = append(t.removed, row.StoragePath)
	}
	return nil
}

// ========== Content Store ==========

func (s *Store) content() *contentTx {
	return &contentTx{db: s.db}
}

// ListSpaceKeys 列出所有空间 key（升序）
func (s *Store) ListSpaceKeys(ctx context.Context) ([]string, error) {
	return s.content().ListSpaceKeys(ctx)
}

// ListAttachmentIDs 列出所有附件当前版本的 ID（升序）
func (s *Store) ListAttachmentIDs(ctx context.Context) ([]string, error) {
	return s.content().ListAttachmentIDs(ctx)
}

// GetAttachment 获取附件版本，附带所属空间
func (s *Store) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	return s.content().GetAttachment(ctx, id)
}

// GetPriorVersions 获取附件的所有历史版本（版本号升序）
func (s *Store) GetPriorVersions(ctx context.Context, current *domain.Attachment) ([]domain.Attachment, error) {
	return s.content().GetPriorVersions(ctx, current)
}

// DeleteVersion 立即删除历史版本及其文件（不在事务中）
func (s *Store) DeleteVersion(ctx context.Context, version *domain.Attachment) error {
	c := s.content()
	if err := c.DeleteVersion(ctx, version); err != nil {
		return err
	}
	s.removeBlobs(c.removed)
	return nil
}

// InTx 在数据库事务中执行一批操作
//
// fn 返回错误时整批回滚；提交成功后才删除对应的附件文件。
func (s *Store) InTx(ctx context.Context, fn func(storage.ContentStore) error) error {
	var removed []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c := &contentTx{db: tx}
		if err := fn(c); err != nil {
			return err
		}
		removed = c.removed
		return nil
	})
	if err != nil {
		return err
	}
	s.removeBlobs(removed)
	return nil
}

// ========== Content Writer ==========

// SaveSpace 保存空间（存在则覆盖）
func (s *Store) SaveSpace(ctx context.Context, space *domain.Space) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(space).Error
}

// SaveAttachment 保存附件版本（存在则覆盖）
func (s *Store) SaveAttachment(ctx context.Context, attachment *domain.Attachment) error {
	if attachment.LineageID == "" || attachment.Version < 1 {
		return fmt.Errorf("attachment %s: lineage and positive version are required", attachment.ID)
	}
	return s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(attachment).Error
}
