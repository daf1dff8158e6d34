package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，code 与 HTTP 状态码一致
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{Code: status, Msg: msg, Data: data})
}

// Success 200 响应
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "ok", data)
}

// SuccessWithMsg 带自定义消息的 200 响应
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, msg, data)
}

// Accepted 202 响应，请求已受理并在后台执行
func Accepted(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusAccepted, msg, data)
}

// BadRequest 400 响应
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// InternalError 500 响应
func InternalError(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, msg)
}

// Error 错误响应，不带数据载荷
func Error(c *gin.Context, status int, msg string) {
	respond(c, status, msg, nil)
}
