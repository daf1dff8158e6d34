package middleware

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SmallBodyLimit 策略等 JSON 请求体的上限
const SmallBodyLimit = 1 << 20

// apiHeaders 纯 JSON API 的固定响应头
var apiHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
}

// abort 以统一的 {code, msg} 结构结束请求
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "msg": msg})
}

// SecurityHeaders 给每个响应加上 apiHeaders
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for k, v := range apiHeaders {
			c.Header(k, v)
		}
		c.Next()
	}
}

// RequestLogger 请求结束后按状态码选择日志级别
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(began)),
			zap.String("client", c.ClientIP()),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}

// BodySizeLimit 拒绝声明长度超限的请求，并限制实际读取的字节数
func BodySizeLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			abort(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// ValidateContentType 带请求体的 POST/PUT/PATCH 必须使用允许的媒体类型
func ValidateContentType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !hasBodyMethod(c.Request.Method) || c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err == nil {
			for _, a := range allowed {
				if mediaType == a {
					c.Next()
					return
				}
			}
		}
		abort(c, http.StatusUnsupportedMediaType, "unsupported Content-Type")
	}
}

func hasBodyMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}
