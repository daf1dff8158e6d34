package httptransport

import (
	"github.com/gin-gonic/gin"

	"attachpurge/backend/internal/scheduler"
	"attachpurge/backend/internal/storage/filesystem"
)

// PurgeController 清理任务控制接口
type PurgeController interface {
	Trigger() error
	Cancel() error
	Status() scheduler.Status
}

// BlobUsage 附件文件占用统计
type BlobUsage interface {
	Usage() (*filesystem.Usage, error)
}

// PurgeHandler 清理任务API处理器
type PurgeHandler struct {
	purge PurgeController
	blobs BlobUsage
}

// NewPurgeHandler 创建清理任务处理器，blobs 可以为 nil
func NewPurgeHandler(purge PurgeController, blobs BlobUsage) *PurgeHandler {
	return &PurgeHandler{purge: purge, blobs: blobs}
}

// Run 在后台启动一次清理
//
// POST /api/v1/purge/run
func (h *PurgeHandler) Run(c *gin.Context) {
	if err := h.purge.Trigger(); err != nil {
		writeError(c, err, MsgRunStartFailed)
		return
	}
	Accepted(c, "purge run started", h.purge.Status())
}

// Cancel 请求取消正在进行的清理，当前批次会提交
//
// POST /api/v1/purge/cancel
func (h *PurgeHandler) Cancel(c *gin.Context) {
	if err := h.purge.Cancel(); err != nil {
		writeError(c, err, MsgInternalError)
		return
	}
	Accepted(c, "cancellation requested", h.purge.Status())
}

// Status 当前状态与上一次运行结果
//
// GET /api/v1/purge/status
func (h *PurgeHandler) Status(c *gin.Context) {
	Success(c, h.purge.Status())
}

// Usage 附件文件存储占用
//
// GET /api/v1/storage/usage
func (h *PurgeHandler) Usage(c *gin.Context) {
	usage, err := h.blobs.Usage()
	if err != nil {
		writeError(c, err, MsgUsageFailed)
		return
	}
	Success(c, usage)
}
