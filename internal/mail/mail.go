package mail

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrQueueFull 投递队列已满
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueClosed 投递队列已关闭
	ErrQueueClosed = errors.New("mail queue is closed")
	// ErrNoRecipient 缺少收件人
	ErrNoRecipient = errors.New("mail has no recipient")
)

// Message 预先渲染好的邮件
type Message struct {
	To          string
	Subject     string
	Body        string
	ContentType string // text/plain 或 text/html
}

// Dispatcher 邮件投递入口
//
// Enqueue 只负责接收，投递失败以 *DispatchError 返回。
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Sender 同步发送一封邮件
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DispatchError 邮件投递失败
type DispatchError struct {
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch mail to %s: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError 判断错误链中是否包含投递失败
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

// Direct 同步投递：Enqueue 直接调用 Sender
type Direct struct {
	sender Sender
}

// NewDirect 创建同步投递器
func NewDirect(sender Sender) *Direct {
	return &Direct{sender: sender}
}

// Enqueue 立即发送
func (d *Direct) Enqueue(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return &DispatchError{Err: ErrNoRecipient}
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return &DispatchError{Recipient: msg.To, Err: err}
	}
	return nil
}
