// Package app 组装存储、邮件、清理服务等组件，供 server 与 purgectl 共用。
package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"attachpurge/backend/internal/config"
	"attachpurge/backend/internal/mail"
	"attachpurge/backend/internal/monitoring"
	"attachpurge/backend/internal/report"
	"attachpurge/backend/internal/retention"
	"attachpurge/backend/internal/service"
	"attachpurge/backend/internal/storage"
	"attachpurge/backend/internal/storage/filesystem"
	"attachpurge/backend/internal/storage/hybrid"
	"attachpurge/backend/internal/storage/memory"
	redisstore "attachpurge/backend/internal/storage/redis"
	sqlstore "attachpurge/backend/internal/storage/sql"
)

// Storage 已打开的存储组件
type Storage struct {
	Store  storage.Store
	Writer storage.ContentWriter
	Blobs  *filesystem.Store  // 未配置 database.blob_path 时为 nil
	Redis  *redisstore.Client // 未启用 Redis 时为 nil
	Locker storage.Locker     // 未启用 Redis 时为 nil
	SQL    *sqlstore.Store    // 使用内存存储时为 nil

	closers []func() error
}

// OpenStorage 根据配置打开存储
//
// database.type 留空时使用内存存储；启用 Redis 时策略读取经过 Redis 缓存，
// 并使用 Redis 运行锁防止多实例同时清理。
func OpenStorage(cfg *config.Config, log *zap.Logger) (*Storage, error) {
	s := &Storage{}

	var primary storage.Store
	if cfg.Database.UsesMemoryStore() {
		primary = memory.NewStore()
		log.Info("using memory storage (development mode)")
	} else {
		db, err := sqlstore.NewStore(sqlstore.Options{
			Driver:          cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database storage: %w", err)
		}
		s.SQL = db
		primary = db
		s.closers = append(s.closers, db.Close)

		if cfg.Database.BlobPath != "" {
			blobs, err := filesystem.NewStore(cfg.Database.BlobPath)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
			}
			db.SetBlobStore(blobs)
			s.Blobs = blobs
			log.Info("blob storage initialized", zap.String("path", blobs.BasePath()))
		}
	}
	s.Writer = primary
	s.Store = primary

	if cfg.Redis.Enabled {
		client, err := redisstore.New(&cfg.Redis, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
		s.Locker = redisstore.NewLocker(client, cfg.Redis.LockTTL)
		s.Store = hybrid.NewStore(primary, redisstore.NewPolicyStore(client, cfg.Redis.PolicyTTL), log)
		log.Info("redis policy cache and run lock enabled", zap.Duration("policy_ttl", cfg.Redis.PolicyTTL))
	}

	return s, nil
}

// Close 按打开的相反顺序关闭连接
func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// App 清理服务运行所需的全部组件
type App struct {
	*Storage

	Config   *config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Mailer   *mail.Queue
	Purge    *service.PurgeService
	Policies *service.PolicyService
}

// New 组装清理服务
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	unit, err := retention.ParseSizeUnit(cfg.Purge.SizeUnit)
	if err != nil {
		return nil, err
	}

	st, err := OpenStorage(cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	mailer := mail.NewQueue(newSender(cfg.Mail, log), cfg.Mail.QueueWorkers, cfg.Mail.QueueSize, cfg.Mail.Timeout, log)
	mailer.SetObserver(metrics.RecordMailDelivery)
	mailer.Start()

	purge := service.NewPurgeService(service.PurgeDependencies{
		Policies:   st.Store,
		Content:    st.Store,
		Tx:         st.Store,
		Evaluator:  retention.NewEvaluator(unit, nil),
		Reports:    report.NewBuilder(cfg.Purge.BaseURL, cfg.Mail.Subject, cfg.Mail.SenderName),
		Mailer:     mailer,
		Metrics:    metrics,
		Logger:     log,
		BatchSize:  cfg.Purge.BatchSize,
		DeleteRate: cfg.Purge.DeleteRate,
	})

	return &App{
		Storage:  st,
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics,
		Mailer:   mailer,
		Purge:    purge,
		Policies: service.NewPolicyService(st.Store, log),
	}, nil
}

// Close 等待邮件队列排空后关闭存储
func (a *App) Close() error {
	a.Mailer.Stop()
	return a.Storage.Close()
}

// newSender 未配置 SMTP 服务器时只记录日志
func newSender(cfg config.MailConfig, log *zap.Logger) mail.Sender {
	if cfg.Host == "" {
		log.Warn("mail.host not configured, reports will only be logged")
		return mail.NewLogSender(log)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		From:               cfg.From,
		HeloName:           cfg.HeloName,
		StartTLS:           cfg.StartTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, log)
}
