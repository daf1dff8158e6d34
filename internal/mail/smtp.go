package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPConfig 发信服务器配置
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	HeloName           string
	StartTLS           bool
	InsecureSkipVerify bool
}

// SMTPSender 通过 SMTP 发送邮件
type SMTPSender struct {
	cfg SMTPConfig
	log *zap.Logger
	now func() time.Time
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg SMTPConfig, log *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg: cfg,
		log: log.With(zap.String("component", "smtp-sender")),
		now: time.Now,
	}
}

// Send 发送一封邮件
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := Compose(s.cfg.From, msg, s.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var c *smtp.Client
	if s.cfg.StartTLS {
		c, err = smtp.DialStartTLS(addr, &tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		})
	} else {
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Close()

	if s.cfg.HeloName != "" {
		if err := c.Hello(s.cfg.HeloName); err != nil {
			return fmt.Errorf("helo: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From, nil); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.log.Debug("smtp quit failed", zap.Error(err))
	}
	s.log.Info("report mail sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("bytes", len(raw)),
	)
	return nil
}

// LogSender 只记录日志不发信，用于未配置 SMTP 的开发环境
type LogSender struct {
	log *zap.Logger
}

// NewLogSender 创建日志发送器
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.With(zap.String("component", "log-sender"))}
}

// Send 记录邮件内容
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info("report mail (not sent, smtp disabled)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("content_type", msg.ContentType),
		zap.Int("body_length", len(msg.Body)),
	)
	s.log.Debug("report mail body", zap.String("body", msg.Body))
	return nil
}
