package handle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

const timeout = 2 * time.Second

func component(c *gin.Context, name string, err error) {
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, types.ComponentHealth{Component: name, Status: "unhealthy", Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.ComponentHealth{Component: name, Status: "ok"})
}

// Health 存活检查，现场设备用它探测连通性.
func (h *Handlers) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, types.HealthResponse{
			Status:  "ok",
			Service: configs.AppName,
			Version: configs.AppVersion,
			Time:    time.Now().UTC(),
		})
	}
}

// HealthDB 数据库健康检查.
func (h *Handlers) HealthDB() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.storage == nil || h.storage.DB == nil {
			component(c, "db", errors.New("db client not initialized"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		component(c, "db", h.storage.DB.Ping(ctx))
	}
}

// HealthMQ 消息队列健康检查.
func (h *Handlers) HealthMQ() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.storage == nil || h.storage.MQ == nil {
			component(c, "mq", errors.New("mq client not initialized"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		component(c, "mq", h.storage.MQ.Ping(ctx))
	}
}

// HealthS3 归档镜像健康检查. 未启用镜像时报告 disabled.
func (h *Handlers) HealthS3() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.storage == nil || h.storage.S3 == nil {
			c.JSON(http.StatusOK, types.ComponentHealth{Component: "s3", Status: "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		component(c, "s3", h.storage.S3.HealthCheck(ctx))
	}
}

// HealthArchive 检查归档根目录存在且可写.
func (h *Handlers) HealthArchive() gin.HandlerFunc {
	return func(c *gin.Context) {
		component(c, "archive", checkWritable(h.archive))
	}
}

func checkWritable(dir string) error {
	if dir == "" {
		return errors.New("archive root not configured")
	}

	if err := os.MkdirAll(dir, configs.DefaultArchiveDirPerm); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(filepath.Clean(name))
}
