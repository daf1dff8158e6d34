package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

var (
	// ErrAlreadyRunning 已有清理任务在运行（本实例或其他实例）
	ErrAlreadyRunning = errors.New("purge run already in progress")
	// ErrNotRunning 当前没有运行中的清理任务
	ErrNotRunning = errors.New("no purge run in progress")
	// ErrLockLost 运行期间跨实例锁丢失，运行被取消
	ErrLockLost = errors.New("run lock lost")
)

// lockName 分布式锁名称
const lockName = "purge-run"

// Runner 执行一次清理
type Runner interface {
	Run(ctx context.Context) *domain.RunResult
}

// Status 任务状态
type Status struct {
	Running    bool              `json:"running"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"` // 当前运行的开始时间
	Schedule   string            `json:"schedule,omitempty"`
	NextRun    *time.Time        `json:"nextRun,omitempty"`
	LastResult *domain.RunResult `json:"lastResult,omitempty"`
	LastError  string            `json:"lastError,omitempty"`
	MailError  string            `json:"mailError,omitempty"`
}

// Job 按 cron 计划执行清理，同一时间最多只有一次运行
//
// 本实例内用互斥状态防止重叠；配置了 Locker 时还会获取跨实例的锁。
type Job struct {
	runner Runner
	locker storage.Locker
	spec   string
	cron   *cron.Cron
	log    *zap.Logger

	mu        sync.Mutex
	sched     cron.Schedule
	base      context.Context
	running   bool
	cancel    context.CancelCauseFunc
	startedAt time.Time
	last      *domain.RunResult
	wg        sync.WaitGroup
}

// NewJob 创建清理任务
//
// 参数:
//   - runner: 清理服务
//   - spec: 5 段 cron 表达式，留空表示只手动触发
//   - locker: 跨实例锁，单实例部署传 nil
func NewJob(runner Runner, spec string, locker storage.Locker, log *zap.Logger) *Job {
	log = log.With(zap.String("component", "scheduler"))
	cronLog := cron.PrintfLogger(zap.NewStdLog(log))

	return &Job{
		runner: runner,
		locker: locker,
		spec:   spec,
		cron:   cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		log:    log,
		base:   context.Background(),
	}
}

// Start 注册计划并启动调度
//
// ctx 结束时停止调度并取消正在进行的运行。
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	j.base = ctx
	j.mu.Unlock()

	if j.spec == "" {
		j.log.Info("purge schedule not configured, manual runs only")
		return nil
	}

	sched, err := cron.ParseStandard(j.spec)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.spec, err)
	}
	j.mu.Lock()
	j.sched = sched
	j.mu.Unlock()

	j.cron.Schedule(sched, cron.FuncJob(func() {
		if err := j.Trigger(); err != nil {
			j.log.Warn("scheduled purge skipped", zap.Error(err))
		}
	}))
	j.cron.Start()

	j.log.Info("purge scheduler started", zap.String("schedule", j.spec))

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop 停止调度，取消正在进行的运行并等待其结束
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
	if err := j.Cancel(); err == nil {
		j.log.Info("cancelled in-flight purge run on shutdown")
	}
	j.wg.Wait()
}

// Trigger 在后台启动一次运行
func (j *Job) Trigger() error {
	j.mu.Lock()
	base := j.base
	j.mu.Unlock()

	runCtx, lease, err := j.begin(base)
	if err != nil {
		return err
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.execute(runCtx, lease)
	}()
	return nil
}

// RunNow 同步执行一次运行
func (j *Job) RunNow(ctx context.Context) (*domain.RunResult, error) {
	runCtx, lease, err := j.begin(ctx)
	if err != nil {
		return nil, err
	}
	return j.execute(runCtx, lease), nil
}

// Cancel 请求取消正在进行的运行
//
// 当前批次会提交，之后的附件不再处理。
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return ErrNotRunning
	}
	j.cancel(context.Canceled)
	return nil
}

// Status 返回当前状态与上一次运行结果
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := Status{
		Running:    j.running,
		Schedule:   j.spec,
		LastResult: j.last,
	}
	if j.running {
		started := j.startedAt
		st.StartedAt = &started
	}
	if j.sched != nil {
		next := j.sched.Next(time.Now())
		st.NextRun = &next
	}
	if j.last != nil {
		if j.last.Err != nil {
			st.LastError = j.last.Err.Error()
		}
		if j.last.MailErr != nil {
			st.MailError = j.last.MailErr.Error()
		}
	}
	return st
}

// begin 标记运行开始并获取跨实例锁
//
// 锁在运行期间丢失时以 ErrLockLost 取消运行 ctx。
func (j *Job) begin(ctx context.Context) (context.Context, storage.Lease, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil, nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	j.running = true
	j.cancel = cancel
	j.startedAt = time.Now()
	j.mu.Unlock()

	if j.locker == nil {
		return runCtx, nil, nil
	}

	lease, err := j.locker.Acquire(context.WithoutCancel(ctx), lockName)
	if err != nil {
		j.finish(nil)
		if errors.Is(err, storage.ErrLockHeld) {
			return nil, nil, fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
		}
		return nil, nil, fmt.Errorf("acquire run lock: %w", err)
	}

	go func() {
		select {
		case <-lease.Lost():
			j.log.Error("run lock lost, cancelling purge run")
			cancel(ErrLockLost)
		case <-runCtx.Done():
		}
	}()
	return runCtx, lease, nil
}

func (j *Job) execute(ctx context.Context, lease storage.Lease) *domain.RunResult {
	result := j.runner.Run(ctx)
	if errors.Is(context.Cause(ctx), ErrLockLost) && result != nil && result.Err == nil {
		result.Err = ErrLockLost
	}

	if lease != nil {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn("failed to release run lock", zap.Error(err))
		}
	}
	j.finish(result)
	return result
}

func (j *Job) finish(result *domain.RunResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if result != nil {
		j.last = result
	}
	j.running = false
	if j.cancel != nil {
		j.cancel(context.Canceled)
		j.cancel = nil
	}
}
