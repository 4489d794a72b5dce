// Package middleware 提供 gin 中间件：设备认证、限流、熔断、监控、追踪与请求日志.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 现场设备请求头.
const (
	HeaderDeviceID    = "X-Device-ID"
	HeaderDeviceToken = "X-Device-Token"
)

// BodyLimitMiddleware 限制请求体大小. 推送请求内联 base64 媒体，上限按配置设置.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > limit {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}

			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()
	}
}
