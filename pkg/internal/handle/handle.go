// Package handle 提供 HTTP 请求处理器的实现.
// 处理器只做绑定、调用服务与错误映射，业务规则在 service 中.
package handle

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/bizzlechizzle/aupat/pkg/context"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/service"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage"
	"github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/middleware"
	"github.com/bizzlechizzle/aupat/pkg/rule"
	"github.com/bizzlechizzle/aupat/pkg/scheduler"
)

// Deps 处理器依赖. Scheduler 可为空.
type Deps struct {
	Sync        *service.SyncService
	Locations   *service.LocationService
	Storage     *storage.Manager
	Scheduler   *scheduler.Scheduler
	ArchiveRoot string
}

// Handlers 持有服务实例，方法返回 gin.HandlerFunc.
type Handlers struct {
	sync      *service.SyncService
	locations *service.LocationService
	storage   *storage.Manager
	sched     *scheduler.Scheduler
	archive   string
}

// New 创建 Handlers.
func New(deps Deps) *Handlers {
	return &Handlers{
		sync:      deps.Sync,
		locations: deps.Locations,
		storage:   deps.Storage,
		sched:     deps.Scheduler,
		archive:   deps.ArchiveRoot,
	}
}

// DefaultHandler 未实现的路由.
func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"message": "Not Implemented"})
}

// deviceID 取认证中间件写入的设备标识，没有时读请求头.
func deviceID(c *gin.Context) string {
	if id := ctxPkg.DeviceID(c.Request.Context()); id != "" {
		return id
	}

	return strings.TrimSpace(c.GetHeader(middleware.HeaderDeviceID))
}

// fail 按错误类型映射状态码并写入 {"error": ...}.
func fail(c *gin.Context, msg string, err error) {
	status := errs.HTTPStatus(err)

	l := log.Logger()
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	} else {
		l.Warn().Err(err).Str("path", c.FullPath()).Msg(msg)
	}

	body := gin.H{"error": err.Error()}
	if fields := rule.Errors(err); len(fields) > 0 {
		body["fields"] = fields
	}

	c.JSON(status, body)
}

// bindFailed 请求体无法解析或未通过校验.
func bindFailed(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	fail(c, "invalid request", errors.Join(errs.ErrValidationFailed, err))
}
