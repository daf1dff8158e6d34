// Package health 组装存活与就绪检查。
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// maxGoroutines 存活检查允许的协程数上限
const maxGoroutines = 10000

// Pinger 可以探测连接状态的依赖（Redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker 存储健康检查
type StoreChecker interface {
	Health() error
}

// Checker 存活检查只看进程本身，就绪检查覆盖注册的依赖
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger

	mu        sync.Mutex
	readiness map[string]healthcheck.Check
}

// New 创建只带协程数存活检查的 Checker
func New(log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		handler:   healthcheck.NewHandler(),
		log:       log,
		readiness: make(map[string]healthcheck.Check),
	}
	c.handler.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	return c
}

// AddReadiness 注册一个就绪检查，同名检查只保留最后一次注册
func (c *Checker) AddReadiness(name string, check healthcheck.Check) {
	c.mu.Lock()
	c.readiness[name] = check
	c.mu.Unlock()
	c.handler.AddReadinessCheck(name, check)
}

// Handler 同时提供 /live 与 /ready
func (c *Checker) Handler() http.Handler {
	return c.handler
}

// LiveEndpoint 存活检查
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查，任一依赖失败返回 503
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}

// Report 逐项执行就绪检查，返回 名称 -> "OK" 或错误描述
func (c *Checker) Report() map[string]string {
	c.mu.Lock()
	checks := make(map[string]healthcheck.Check, len(c.readiness))
	names := make([]string, 0, len(c.readiness))
	for name, check := range c.readiness {
		checks[name] = check
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]string, len(names)+1)
	for _, name := range names {
		if err := checks[name](); err != nil {
			c.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			out[name] = fmt.Sprintf("ERROR: %v", err)
			continue
		}
		out[name] = "OK"
	}
	out["timestamp"] = time.Now().Format(time.RFC3339)
	return out
}

// StoreCheck 包装存储的 Health 方法
func StoreCheck(store StoreChecker) healthcheck.Check {
	return store.Health
}

// PingCheck 带超时的连接检查
func PingCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}

// DirCheck 目录必须存在（附件文件存储根目录）
func DirCheck(path string) healthcheck.Check {
	return func() error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	}
}
