package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"attachpurge/backend/internal/storage"
)

// releaseScript 只删除自己持有的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript 锁仍属于自己时重置过期时间，返回 0 表示锁已丢失
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker 基于 SET NX 的分布式互斥锁，防止多个实例同时清理
type Locker struct {
	client *Client
	ttl    time.Duration
}

var _ storage.Locker = (*Locker)(nil)

// NewLocker 创建分布式锁
//
// 持有期间每 ttl/3 续期一次，进程异常退出后锁最多在 ttl 后自动释放。
func NewLocker(client *Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire 获取锁并开始自动续期
//
// 锁已被持有时返回 storage.ErrLockHeld。
func (l *Locker) Acquire(ctx context.Context, name string) (storage.Lease, error) {
	key := l.client.Key("lock", name)
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrLockHeld
	}

	renew := func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, l.client.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
		return n == 1, err
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client.rdb, []string{key}, token).Err()
	}
	log := l.client.log.With(zap.String("lock", key))
	return startLease(renew, release, l.ttl, log), nil
}

// lease 后台续期的锁
//
// 续期返回 false，或者连续失败超过 ttl（锁已必然过期）时视为丢失。
type lease struct {
	renew   func(context.Context) (bool, error)
	release func(context.Context) error
	ttl     time.Duration
	log     *zap.Logger

	lost     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startLease(renew func(context.Context) (bool, error), release func(context.Context) error, ttl time.Duration, log *zap.Logger) *lease {
	l := &lease{
		renew:   renew,
		release: release,
		ttl:     ttl,
		log:     log,
		lost:    make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.keepAlive()
	return l
}

func (l *lease) Lost() <-chan struct{} {
	return l.lost
}

func (l *lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	return l.release(ctx)
}

func (l *lease) keepAlive() {
	defer close(l.done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := l.renew(ctx)
		cancel()

		switch {
		case err == nil && held:
			lastRenewed = time.Now()
		case err == nil:
			l.log.Warn("run lock taken over by another holder")
			close(l.lost)
			return
		case time.Since(lastRenewed) >= l.ttl:
			l.log.Warn("run lock expired while renewal kept failing", zap.Error(err))
			close(l.lost)
			return
		default:
			l.log.Warn("run lock renewal failed, retrying", zap.Error(err))
		}
	}
}
