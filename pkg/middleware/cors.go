package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// CORSMiddleware CORS中间件. 现场设备的 Web 外壳需要携带设备请求头.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AddAllowHeaders(HeaderDeviceID, HeaderDeviceToken, "Content-Encoding")
	config.AddExposeHeaders("X-Trace-ID")

	if !cfg.Debug {
		config.MaxAge = 12 * time.Hour
	}

	return cors.New(config)
}
