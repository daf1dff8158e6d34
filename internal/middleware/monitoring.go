package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attachpurge/backend/internal/monitoring"
)

// unmatchedRoute 未注册路由统一使用的 endpoint 标签
const unmatchedRoute = "unmatched"

// Instrument 记录每个请求的次数与耗时
//
// endpoint 标签取路由模板，而不是原始路径。
func Instrument(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(began))
		if status >= http.StatusInternalServerError {
			metrics.RecordError("http_error", "http")
		}
	}
}

// Recover 捕获 handler 中的 panic，计数并以 500 结束请求
func Recover(metrics *monitoring.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			metrics.RecordPanic()
			log.Error("handler panicked",
				zap.Any("panic", r),
				zap.String("route", c.FullPath()),
				zap.String("method", c.Request.Method),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code": http.StatusInternalServerError,
				"msg":  "internal server error",
			})
		}()
		c.Next()
	}
}
