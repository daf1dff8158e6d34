package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/mail"
	"attachpurge/backend/internal/monitoring"
	"attachpurge/backend/internal/report"
	"attachpurge/backend/internal/retention"
	"attachpurge/backend/internal/storage"
)

// DefaultBatchSize 每个事务处理的附件数
const DefaultBatchSize = 50

// PurgeDependencies 清理服务依赖项
type PurgeDependencies struct {
	Policies  storage.PolicyStore
	Content   storage.ContentStore
	Tx        storage.Transactor
	Evaluator *retention.Evaluator
	Reports   *report.Builder
	Mailer    mail.Dispatcher
	Metrics   *monitoring.Metrics // 可选
	Logger    *zap.Logger

	BatchSize  int     // 默认 DefaultBatchSize
	DeleteRate float64 // 每秒最多删除的版本数，0 表示不限制
	Now        func() time.Time
}

// PurgeService 附件历史版本清理服务
type PurgeService struct {
	content   storage.ContentStore
	tx        storage.Transactor
	resolver  *retention.Resolver
	evaluator *retention.Evaluator
	reports   *report.Builder
	mailer    mail.Dispatcher
	metrics   *monitoring.Metrics
	limiter   *rate.Limiter
	batchSize int
	now       func() time.Time
	log       *zap.Logger
}

// NewPurgeService 创建清理服务
func NewPurgeService(deps PurgeDependencies) *PurgeService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = retention.NewEvaluator(retention.UnitMiB, now)
	}
	reports := deps.Reports
	if reports == nil {
		reports = report.NewBuilder("", "", "")
	}

	var limiter *rate.Limiter
	if deps.DeleteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.DeleteRate), 1)
	}

	return &PurgeService{
		content:   deps.Content,
		tx:        deps.Tx,
		resolver:  retention.NewResolver(deps.Policies, log),
		evaluator: evaluator,
		reports:   reports,
		mailer:    deps.Mailer,
		metrics:   deps.Metrics,
		limiter:   limiter,
		batchSize: batchSize,
		now:       now,
		log:       log.With(zap.String("component", "purge")),
	}
}

// purgeRun 单次运行的状态，只在运行协程内访问
type purgeRun struct {
	log      *zap.Logger
	system   *domain.Policy
	policies *retention.EffectivePolicies
	stats    domain.RunStatistics
	mailLog  domain.MailLog
}

// purgeBatch 一个事务内累积的结果，提交后才合并到运行结果
type purgeBatch struct {
	stats   domain.RunStatistics
	mailLog domain.MailLog
}

// Run 执行一次清理
//
// ctx 取消即为取消信号：在每个批次和每个附件开始前检查，
// 正在进行的删除会完成。存储调用不受 ctx 取消影响。
func (s *PurgeService) Run(ctx context.Context) *domain.RunResult {
	result := &domain.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	r := &purgeRun{
		log:     s.log.With(zap.String("run_id", result.RunID)),
		mailLog: domain.MailLog{},
	}

	if s.metrics != nil {
		s.metrics.RunStarted()
		defer func() { s.metrics.RecordRun(result) }()
	}

	r.log.Info("purge run started")
	opCtx := context.WithoutCancel(ctx)

	cancelled, err := s.purge(ctx, opCtx, r)
	result.Stats = r.stats
	result.EndedAt = s.now()

	if err != nil {
		result.Outcome = domain.RunFailed
		result.Err = err
		r.log.Error("purge run failed",
			zap.Error(err),
			zap.Any("stats", r.stats),
			zap.Duration("elapsed", result.Elapsed()),
			zap.Stack("stack"),
		)
		return result
	}

	s.logStatistics(r, result)

	sent, mailErr := s.dispatch(opCtx, r, report.Summary{
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
		Stats:     r.stats,
		Cancelled: cancelled,
	})
	result.ReportsSent = sent
	result.MailErr = mailErr

	switch {
	case cancelled:
		result.Outcome = domain.RunCancelled
	case mailErr != nil:
		result.Outcome = domain.RunCompletedWithMailError
	default:
		result.Outcome = domain.RunCompleted
	}

	r.log.Info("purge run finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("reports_sent", sent),
		zap.Duration("elapsed", result.Elapsed()),
	)
	return result
}

// purge 解析策略并分批处理所有附件，返回是否被取消
func (s *PurgeService) purge(ctx, opCtx context.Context, r *purgeRun) (bool, error) {
	system, err := s.resolver.SystemPolicy(opCtx)
	if err != nil {
		return false, err
	}
	r.system = system

	spaceKeys, err := s.content.ListSpaceKeys(opCtx)
	if err != nil {
		return false, fmt.Errorf("list spaces: %w", err)
	}
	r.policies, err = s.resolver.ResolveAll(opCtx, spaceKeys, system)
	if err != nil {
		return false, err
	}

	ids, err := s.content.ListAttachmentIDs(opCtx)
	if err != nil {
		return false, fmt.Errorf("list attachments: %w", err)
	}
	r.log.Info("attachments enumerated",
		zap.Int("attachments", len(ids)),
		zap.Int("spaces", len(spaceKeys)),
		zap.Int("batch_size", s.batchSize),
	)

	for start := 0; start < len(ids); start += s.batchSize {
		if ctx.Err() != nil {
			r.log.Warn("cancellation requested, stopping before next batch", zap.Int("next_index", start))
			return true, nil
		}

		end := min(start+s.batchSize, len(ids))
		b := &purgeBatch{mailLog: domain.MailLog{}}
		interrupted := false

		err := s.tx.InTx(opCtx, func(store storage.ContentStore) error {
			for _, id := range ids[start:end] {
				if ctx.Err() != nil {
					interrupted = true
					return nil
				}
				if err := s.processAttachment(opCtx, store, r, b, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("batch %d (attachments %d-%d): %w", r.stats.Batches+1, start, end-1, err)
		}

		b.stats.Batches = 1
		r.stats.Add(b.stats)
		r.mailLog.Merge(b.mailLog)

		if interrupted {
			r.log.Warn("cancellation requested, batch committed early", zap.Int64("batch", r.stats.Batches))
			return true, nil
		}
	}
	return false, nil
}

// processAttachment 评估并处理单个附件
func (s *PurgeService) processAttachment(ctx context.Context, store storage.ContentStore, r *purgeRun, b *purgeBatch, id string) error {
	att, err := store.GetAttachment(ctx, id)
	if errors.Is(err, storage.ErrAttachmentNotFound) {
		r.log.Debug("attachment disappeared since enumeration", zap.String("attachment_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get attachment %s: %w", id, err)
	}

	b.stats.AttachmentsSeen++
	if att.IsFirstVersion() {
		return nil
	}

	eff := r.policies.For(att.SpaceKey)
	if eff == nil {
		return nil
	}
	b.stats.AttachmentsVisited++

	prior, err := store.GetPriorVersions(ctx, att)
	if err != nil {
		return fmt.Errorf("get prior versions of %s: %w", id, err)
	}
	b.stats.PriorVersionsSeen += int64(len(prior))

	eligible := s.evaluator.FindEligible(prior, eff.Policy)
	if len(eligible) == 0 {
		return nil
	}

	if bad := retention.Anomalies(eligible, att.Version); len(bad) > 0 {
		r.log.Error("eligible version is not older than current version, skipping attachment",
			zap.String("attachment_id", att.ID),
			zap.String("space", att.SpaceKey),
			zap.Int("current_version", att.Version),
			zap.Ints("versions", bad),
		)
		b.stats.AnomaliesSkipped++
		return nil
	}
	b.stats.AttachmentsEligible++

	canDelete := s.canDelete(r, b, eff.Policy)
	if canDelete {
		b.stats.AttachmentsPurged++
	}

	entry := domain.MailLogEntry{
		SpaceKey:           att.SpaceKey,
		SpaceName:          att.SpaceName(),
		SpaceURLPath:       att.SpaceURLPath(),
		AttachmentID:       att.ID,
		Title:              att.Title,
		AttachmentsURLPath: att.AttachmentsURLPath(),
		Version:            att.Version,
		Versions:           make([]int, 0, len(eligible)),
		ReportOnly:         !canDelete,
		SystemPolicy:       eff.System,
	}

	for i := range eligible {
		v := &eligible[i]
		entry.Versions = append(entry.Versions, v.Version)
		entry.Bytes += v.Size

		if !canDelete {
			b.stats.VersionsAvailable++
			b.stats.BytesAvailable += v.Size
			continue
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("delete throttle: %w", err)
			}
		}

		started := time.Now()
		if err := store.DeleteVersion(ctx, v); err != nil {
			return fmt.Errorf("delete version %d of attachment %s (%s): %w", v.Version, att.ID, att.Title, err)
		}
		elapsed := time.Since(started)

		b.stats.VersionsDeleted++
		b.stats.DeletionTime += elapsed
		b.stats.BytesDeleted += v.Size
		if s.metrics != nil {
			s.metrics.ObserveDeletion(elapsed)
		}
	}

	r.log.Debug("attachment processed",
		zap.String("attachment_id", att.ID),
		zap.String("space", att.SpaceKey),
		zap.Ints("versions", entry.Versions),
		zap.Bool("deleted", canDelete),
	)

	s.record(r, b, eff, entry)
	return nil
}

// canDelete 两级策略都不是仅报告，且未达到系统删除上限
func (s *PurgeService) canDelete(r *purgeRun, b *purgeBatch, policy *domain.Policy) bool {
	if policy.ReportOnly || r.system.ReportOnly {
		return false
	}
	if r.system.DeleteLimit == 0 {
		return true
	}
	return r.stats.AttachmentsPurged+b.stats.AttachmentsPurged < int64(r.system.DeleteLimit)
}

// record 将处理记录分配给空间策略与系统策略的收件人，同一地址只记录一次
func (s *PurgeService) record(r *purgeRun, b *purgeBatch, eff *retention.Effective, entry domain.MailLogEntry) {
	scopeRecipient := eff.Policy.Recipient()
	systemRecipient := r.system.Recipient()

	if scopeRecipient != "" {
		b.mailLog.Add(strings.ToLower(scopeRecipient), entry)
	}
	if systemRecipient != "" && !strings.EqualFold(systemRecipient, scopeRecipient) {
		b.mailLog.Add(strings.ToLower(systemRecipient), entry)
	}
}

// dispatch 为每个收件人生成并投递报告
//
// 单个收件人失败不影响其他收件人，所有失败合并返回。
func (s *PurgeService) dispatch(ctx context.Context, r *purgeRun, summary report.Summary) (int, error) {
	if len(r.mailLog) == 0 {
		return 0, nil
	}

	format := report.FormatFor(r.system)
	messages, err := s.reports.Build(format, r.mailLog, summary)
	if err != nil {
		r.log.Error("failed to render reports", zap.Error(err))
		return 0, &mail.DispatchError{Err: err}
	}

	recipients := make([]string, 0, len(messages))
	for recipient := range messages {
		recipients = append(recipients, recipient)
	}
	sort.Strings(recipients)

	sent := 0
	var errs []error
	for _, recipient := range recipients {
		msg := messages[recipient]
		err := s.mailer.Enqueue(ctx, mail.Message{
			To:          recipient,
			Subject:     msg.Subject,
			Body:        msg.Body,
			ContentType: msg.ContentType,
		})
		if err != nil {
			r.log.Error("could not dispatch report", zap.String("to", recipient), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *PurgeService) logStatistics(r *purgeRun, result *domain.RunResult) {
	st := r.stats
	r.log.Info("purge statistics",
		zap.Int64("attachments_seen", st.AttachmentsSeen),
		zap.Int64("attachments_visited", st.AttachmentsVisited),
		zap.Int64("prior_versions_seen", st.PriorVersionsSeen),
		zap.Int64("attachments_eligible", st.AttachmentsEligible),
		zap.Int64("attachments_purged", st.AttachmentsPurged),
		zap.Int64("versions_deleted", st.VersionsDeleted),
		zap.Duration("avg_deletion", st.AverageDeletion()),
		zap.Int64("versions_available", st.VersionsAvailable),
		zap.Int64("bytes_deleted", st.BytesDeleted),
		zap.Int64("anomalies_skipped", st.AnomaliesSkipped),
		zap.Int64("batches", st.Batches),
		zap.Duration("avg_visit", st.AverageVisit(result.Elapsed())),
	)
}
