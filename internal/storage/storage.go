package storage

import (
	"context"
	"errors"

	"attachpurge/backend/internal/domain"
)

var (
	// ErrAttachmentNotFound 附件未找到错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrPolicyNotFound 策略未找到错误
	ErrPolicyNotFound = errors.New("policy not found")
	// ErrSpaceNotFound 空间未找到错误
	ErrSpaceNotFound = errors.New("space not found")
	// ErrNotPriorVersion 试图删除当前版本
	ErrNotPriorVersion = errors.New("refusing to delete current attachment version")
	// ErrLockHeld 锁已被其他实例持有
	ErrLockHeld = errors.New("lock is held by another instance")
)

// SystemScope 系统策略使用的 scope key
const SystemScope = ""

// systemPolicyKey 系统策略在持久层中的键名
const systemPolicyKey = "@system"

// PolicyKey 返回策略在持久层中使用的键名
//
// 空 scope 对应系统策略。
func PolicyKey(scopeKey string) string {
	if scopeKey == SystemScope {
		return systemPolicyKey
	}
	return scopeKey
}

// PolicyStore 定义保留策略存取操作，按可选的 scope key 存取。
type PolicyStore interface {
	GetPolicy(ctx context.Context, scopeKey string) (*domain.Policy, error) // 不存在时返回 ErrPolicyNotFound
	SavePolicy(ctx context.Context, scopeKey string, policy *domain.Policy) error
	DeletePolicy(ctx context.Context, scopeKey string) error
}

// ContentStore 定义附件内容的读取与历史版本删除操作。
type ContentStore interface {
	ListSpaceKeys(ctx context.Context) ([]string, error)
	ListAttachmentIDs(ctx context.Context) ([]string, error) // 只返回当前版本
	GetAttachment(ctx context.Context, id string) (*domain.Attachment, error)
	GetPriorVersions(ctx context.Context, current *domain.Attachment) ([]domain.Attachment, error)
	DeleteVersion(ctx context.Context, version *domain.Attachment) error
}

// Transactor 在同一个事务中执行一批操作
//
// fn 返回错误时整批回滚。
type Transactor interface {
	InTx(ctx context.Context, fn func(ContentStore) error) error
}

// ContentWriter 写入空间与附件版本（迁移、导入与测试使用）
type ContentWriter interface {
	SaveSpace(ctx context.Context, space *domain.Space) error
	SaveAttachment(ctx context.Context, attachment *domain.Attachment) error
}

// Locker 跨实例互斥锁
//
// 锁被其他实例持有时返回 ErrLockHeld。
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, error)
}

// Lease 一次成功获取的锁
//
// 持有期间自动续期；续期发现锁已不属于自己时关闭 Lost。
// Release 停止续期并只释放本次获取的锁，可重复调用。
type Lease interface {
	Lost() <-chan struct{}
	Release(ctx context.Context) error
}

// Store 聚合存储接口
type Store interface {
	PolicyStore
	ContentStore
	ContentWriter
	Transactor

	Health() error
	Close() error
}
