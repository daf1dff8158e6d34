package mail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"attachpurge/backend/internal/pool"
)

// DeliveryObserver 记录异步投递结果
type DeliveryObserver func(err error)

// Queue 异步投递队列
//
// Enqueue 只把邮件放入协程池队列，投递失败只记录日志（fire-and-forget）。
type Queue struct {
	sender   Sender
	pool     *pool.Pool
	timeout  time.Duration
	observer DeliveryObserver
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewQueue 创建投递队列
//
// 参数:
//   - sender: 实际发送器
//   - workers: 并发投递协程数
//   - size: 队列容量
//   - timeout: 单封邮件的投递超时
func NewQueue(sender Sender, workers, size int, timeout time.Duration, log *zap.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 100
	}
	return &Queue{
		sender:  sender,
		pool:    pool.New(workers, size, log),
		timeout: timeout,
		log:     log.With(zap.String("component", "mail-queue")),
	}
}

// SetObserver 设置投递结果回调（用于监控）
func (q *Queue) SetObserver(observer DeliveryObserver) {
	q.observer = observer
}

// Start 启动投递协程
//
// Stop 会等待队列中的邮件发完。
func (q *Queue) Start() {
	q.pool.Start()
}

// Enqueue 将邮件放入队列
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return &DispatchError{Err: ErrNoRecipient}
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return &DispatchError{Recipient: msg.To, Err: ErrQueueClosed}
	}

	if !q.pool.TrySubmit(func() { q.deliver(msg) }) {
		return &DispatchError{Recipient: msg.To, Err: ErrQueueFull}
	}
	return nil
}

// Stop 停止接收新邮件并等待队列排空
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.pool.Stop()
}

func (q *Queue) deliver(msg Message) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := q.sender.Send(ctx, msg)
	if err != nil {
		q.log.Error("report mail delivery failed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
	if q.observer != nil {
		q.observer(err)
	}
}
