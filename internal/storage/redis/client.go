// Package redis 提供基于 Redis 的策略缓存存储与跨实例运行锁。
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"attachpurge/backend/internal/config"
)

const (
	connectTimeout = 5 * time.Second
	ioTimeout      = 3 * time.Second
)

// Client go-redis 客户端加上统一的键名前缀
type Client struct {
	rdb    *goredis.Client
	prefix string
	log    *zap.Logger
}

// New 按配置连接 Redis，连接不上时返回错误
func New(cfg *config.RedisConfig, log *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Address, err)
	}

	c := NewWithClient(rdb, cfg.KeyPrefix, log)
	c.log.Info("redis connected", zap.String("address", cfg.Address), zap.Int("db", cfg.DB))
	return c, nil
}

// NewWithClient 包装已连接的 go-redis 客户端，测试时使用
func NewWithClient(rdb *goredis.Client, prefix string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rdb: rdb, prefix: prefix, log: log.With(zap.String("component", "redis"))}
}

// Key 拼出带前缀的键名，各段以冒号分隔
func (c *Client) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Ping 健康检查使用
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭连接池
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
