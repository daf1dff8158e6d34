package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/scheduler"
	"attachpurge/backend/internal/storage"
)

// errorStatus 业务错误到 HTTP 状态码的映射，按顺序匹配（errors.Is）
var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{domain.ErrInvalidPolicy, http.StatusBadRequest, ""},
	{storage.ErrPolicyNotFound, http.StatusNotFound, MsgPolicyNotFound},
	{scheduler.ErrAlreadyRunning, http.StatusConflict, MsgRunInProgress},
	{scheduler.ErrNotRunning, http.StatusConflict, MsgNoRunInProgress},
}

// writeError 按错误类型写出响应
//
// 校验错误直接返回错误文本，未知错误统一返回 500。
func writeError(c *gin.Context, err error, fallback string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			msg := e.msg
			if msg == "" {
				msg = err.Error()
			}
			Error(c, e.status, msg)
			return
		}
	}
	_ = c.Error(err)
	InternalError(c, fallback)
}

// 通用错误消息
const (
	MsgInvalidRequest = "invalid request body"
	MsgInternalError  = "internal server error"

	MsgPolicyNotFound   = "policy not found"
	MsgPolicyGetFailed  = "failed to load policy"
	MsgPolicySaveFailed = "failed to save policy"

	MsgRunInProgress   = "a purge run is already in progress"
	MsgNoRunInProgress = "no purge run in progress"
	MsgRunStartFailed  = "failed to start purge run"

	MsgUsageFailed = "failed to read blob storage usage"
)
