package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("memory store closed")

// Store 使用内存保存空间、附件版本与策略，主要用于开发验证和测试。
type Store struct {
	mu       sync.RWMutex
	spaces   map[string]*domain.Space      // spaceKey -> space
	versions map[string]*domain.Attachment // versionID -> version
	lineages map[string][]string           // lineageID -> versionIDs
	policies map[string]domain.Policy      // PolicyKey -> policy
	closed   bool
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		spaces:   make(map[string]*domain.Space),
		versions: make(map[string]*domain.Attachment),
		lineages: make(map[string][]string),
		policies: make(map[string]domain.Policy),
	}
}

var _ storage.Store = (*Store)(nil)

// Health 内存存储始终可用，关闭后返回错误
func (s *Store) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 关闭存储
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ========== Policy Store ==========

// GetPolicy 获取策略，空 scope 表示系统策略
func (s *Store) GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[storage.PolicyKey(scopeKey)]
	if !ok {
		return nil, storage.ErrPolicyNotFound
	}
	return &policy, nil
}

// SavePolicy 保存策略
func (s *Store) SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[storage.PolicyKey(scopeKey)] = *policy
	return nil
}

// DeletePolicy 删除策略
func (s *Store) DeletePolicy(ctx context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storage.PolicyKey(scopeKey)
	if _, ok := s.policies[key]; !ok {
		return storage.ErrPolicyNotFound
	}
	delete(s.policies, key)
	return nil
}

// ========== Content Writer ==========

// SaveSpace 保存空间
func (s *Store) SaveSpace(ctx context.Context, space *domain.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *space
	s.spaces[space.Key] = &copied
	return nil
}

// SaveAttachment 保存附件版本
func (s *Store) SaveAttachment(ctx context.Context, attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *attachment
	copied.Space = nil
	if _, exists := s.versions[copied.ID]; !exists {
		s.lineages[copied.LineageID] = append(s.lineages[copied.LineageID], copied.ID)
	}
	s.versions[copied.ID] = &copied
	return nil
}

// ========== Content Store ==========

// ListSpaceKeys 列出所有空间 key（升序）
func (s *Store) ListSpaceKeys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.spaces))
	for key := range s.spaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListAttachmentIDs 列出所有附件当前版本的 ID（升序）
func (s *Store) ListAttachmentIDs(ctx context.Context) ([]string, error) {
	return s.listCurrentIDs(nil), nil
}

// GetAttachment 获取附件版本
func (s *Store) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	return s.getAttachment(id, nil)
}

// GetPriorVersions 获取附件的所有历史版本（版本号升序）
func (s *Store) GetPriorVersions(ctx context.Context, current *domain.Attachment) ([]domain.Attachment, error) {
	return s.priorVersions(current, nil), nil
}

// DeleteVersion 立即删除历史版本（不在事务中）
func (s *Store) DeleteVersion(ctx context.Context, version *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDeletable(version.ID, nil); err != nil {
		return err
	}
	s.removeLocked(version.ID)
	return nil
}

// InTx 在事务中执行一批操作
//
// 删除先记录在事务内，fn 成功返回后统一生效；fn 返回错误时全部丢弃。
func (s *Store) InTx(ctx context.Context, fn func(storage.ContentStore) error) error {
	tx := &txStore{store: s, pending: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.pending {
		s.removeLocked(id)
	}
	return nil
}

// ========== 内部方法 ==========

func (s *Store) listCurrentIDs(hidden map[string]struct{}) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.lineages))
	for _, versionIDs := range s.lineages {
		var current *domain.Attachment
		for _, id := range versionIDs {
			if _, gone := hidden[id]; gone {
				continue
			}
			v := s.versions[id]
			if current == nil || v.Version > current.Version {
				current = v
			}
		}
		if current != nil {
			ids = append(ids, current.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) getAttachment(id string, hidden map[string]struct{}) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, gone := hidden[id]; gone {
		return nil, storage.ErrAttachmentNotFound
	}
	v, ok := s.versions[id]
	if !ok {
		return nil, storage.ErrAttachmentNotFound
	}
	return s.withSpaceLocked(*v), nil
}

func (s *Store) priorVersions(current *domain.Attachment, hidden map[string]struct{}) []domain.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prior []domain.Attachment
	for _, id := range s.lineages[current.LineageID] {
		if _, gone := hidden[id]; gone {
			continue
		}
		v := s.versions[id]
		if v.Version < current.Version {
			prior = append(prior, *s.withSpaceLocked(*v))
		}
	}
	sort.SliceStable(prior, func(i, j int) bool { return prior[i].Version < prior[j].Version })
	return prior
}

// checkDeletable 版本必须存在且不是所在附件的最新版本
func (s *Store) checkDeletable(id string, hidden map[string]struct{}) error {
	if _, gone := hidden[id]; gone {
		return storage.ErrAttachmentNotFound
	}
	v, ok := s.versions[id]
	if !ok {
		return storage.ErrAttachmentNotFound
	}
	for _, otherID := range s.lineages[v.LineageID] {
		if _, gone := hidden[otherID]; gone {
			continue
		}
		if s.versions[otherID].Version > v.Version {
			return nil
		}
	}
	return storage.ErrNotPriorVersion
}

func (s *Store) removeLocked(id string) {
	v, ok := s.versions[id]
	if !ok {
		return
	}
	delete(s.versions, id)

	ids := s.lineages[v.LineageID]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.lineages, v.LineageID)
	} else {
		s.lineages[v.LineageID] = ids
	}
}

func (s *Store) withSpaceLocked(v domain.Attachment) *domain.Attachment {
	if space, ok := s.spaces[v.SpaceKey]; ok {
		copied := *space
		v.Space = &copied
	}
	return &v
}

// txStore 事务视图：删除在提交前对视图内的读取不可见
type txStore struct {
	store   *Store
	mu      sync.Mutex
	pending map[string]struct{}
}

func (t *txStore) hidden() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]struct{}, len(t.pending))
	for id := range t.pending {
		out[id] = struct{}{}
	}
	return out
}

func (t *txStore) ListSpaceKeys(ctx context.Context) ([]string, error) {
	return t.store.ListSpaceKeys(ctx)
}

func (t *txStore) ListAttachmentIDs(ctx context.Context) ([]string, error) {
	return t.store.listCurrentIDs(t.hidden()), nil
}

func (t *txStore) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	return t.store.getAttachment(id, t.hidden())
}

func (t *txStore) GetPriorVersions(ctx context.Context, current *domain.Attachment) ([]domain.Attachment, error) {
	return t.store.priorVersions(current, t.hidden()), nil
}

func (t *txStore) DeleteVersion(ctx context.Context, version *domain.Attachment) error {
	hidden := t.hidden()

	t.store.mu.RLock()
	err := t.store.checkDeletable(version.ID, hidden)
	t.store.mu.RUnlock()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.pending[version.ID] = struct{}{}
	t.mu.Unlock()
	return nil
}
