package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	ctxPkg "github.com/bizzlechizzle/aupat/pkg/context"
)

// DeviceAuthMiddleware 识别现场设备.
//   - 请求携带 X-Device-ID 时写入请求上下文，供处理器与日志使用
//   - 启用认证时要求 X-Device-ID；配置了设备白名单时必须在名单内
//   - 白名单中配置了 token 的设备还需携带匹配的 X-Device-Token
//   - skip_paths 中的路径前缀不做校验（健康检查、监控）
func DeviceAuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		device := strings.TrimSpace(c.GetHeader(HeaderDeviceID))
		if device != "" {
			c.Request = c.Request.WithContext(ctxPkg.WithDeviceID(c.Request.Context(), device))
		}

		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		if device == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderDeviceID})
			return
		}

		if len(conf.Devices) > 0 {
			// viper 把 map 键转为小写
			token, ok := conf.Devices[strings.ToLower(device)]
			if !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown device"})
				return
			}

			if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(c.GetHeader(HeaderDeviceToken))) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid device token"})
				return
			}
		}

		c.Next()
	}
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
