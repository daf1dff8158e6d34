// Package pool 提供固定数量协程、有界队列的任务池。
package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool 固定协程数的任务池
//
// Stop 关闭队列后，协程会把已入队的任务执行完再退出。
type Pool struct {
	workers int
	tasks   chan func()
	log     *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New 创建任务池
//
// 参数:
//   - workers: 协程数，小于 1 时按 1 处理
//   - capacity: 队列容量
//   - log: 任务 panic 时使用，可为 nil
func New(workers, capacity int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan func(), capacity),
		log:     log,
	}
}

// Start 启动全部协程
func (p *Pool) Start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.safeRun(task)
			}
		}()
	}
}

// Submit 入队任务，队列满时阻塞直到有空位或 ctx 结束
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 入队任务，队列满时立即返回 false
func (p *Pool) TrySubmit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Pending 排队中的任务数
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Stop 关闭队列并等待协程退出，可重复调用
//
// Stop 之后不能再提交任务。
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

func (p *Pool) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pool task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
