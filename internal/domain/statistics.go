package domain

import "time"

// RunStatistics 单次清理运行的统计信息
type RunStatistics struct {
	AttachmentsSeen     int64         `json:"attachmentsSeen"`     // 枚举到的当前版本数
	AttachmentsVisited  int64         `json:"attachmentsVisited"`  // 实际评估过的附件数
	PriorVersionsSeen   int64         `json:"priorVersionsSeen"`   // 读取到的历史版本数
	AttachmentsEligible int64         `json:"attachmentsEligible"` // 至少有一个可清理版本的附件数
	AttachmentsPurged   int64         `json:"attachmentsPurged"`   // 实际执行清理的附件数（受 DeleteLimit 限制）
	VersionsDeleted     int64         `json:"versionsDeleted"`     // 已删除的版本数
	DeletionTime        time.Duration `json:"deletionTime"`        // 删除累计耗时
	VersionsAvailable   int64         `json:"versionsAvailable"`   // 可清理但未删除的版本数
	BytesDeleted        int64         `json:"bytesDeleted"`        // 已释放字节数
	BytesAvailable      int64         `json:"bytesAvailable"`      // 可释放字节数（仅报告或超出限制）
	AnomaliesSkipped    int64         `json:"anomaliesSkipped"`    // 因数据异常跳过的附件数
	Batches             int64         `json:"batches"`             // 已完成的批次数
}

// Add 合并另一组统计
func (s *RunStatistics) Add(o RunStatistics) {
	s.AttachmentsSeen += o.AttachmentsSeen
	s.AttachmentsVisited += o.AttachmentsVisited
	s.PriorVersionsSeen += o.PriorVersionsSeen
	s.AttachmentsEligible += o.AttachmentsEligible
	s.AttachmentsPurged += o.AttachmentsPurged
	s.VersionsDeleted += o.VersionsDeleted
	s.DeletionTime += o.DeletionTime
	s.VersionsAvailable += o.VersionsAvailable
	s.BytesDeleted += o.BytesDeleted
	s.BytesAvailable += o.BytesAvailable
	s.AnomaliesSkipped += o.AnomaliesSkipped
	s.Batches += o.Batches
}

// AverageDeletion 平均每次删除耗时
func (s RunStatistics) AverageDeletion() time.Duration {
	if s.VersionsDeleted == 0 {
		return 0
	}
	return s.DeletionTime / time.Duration(s.VersionsDeleted)
}

// AverageVisit 平均每个附件的处理耗时
func (s RunStatistics) AverageVisit(elapsed time.Duration) time.Duration {
	if s.AttachmentsVisited == 0 {
		return 0
	}
	return elapsed / time.Duration(s.AttachmentsVisited)
}
