package handle

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

// Push 接收现场设备推送的一批实体.
// 单个实体的冲突或拒绝体现在响应的 results 中，整体仍返回 200.
func (h *Handlers) Push() gin.HandlerFunc {
	return func(c *gin.Context) {
		device := deviceID(c)
		if device == "" {
			fail(c, "push without device", fmt.Errorf("X-Device-ID is required: %w", errs.ErrValidationFailed))
			return
		}

		var req types.PushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}

		resp, err := h.sync.Push(c.Request.Context(), device, &req)
		if err != nil {
			fail(c, "push failed", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// Pull 返回水位线之后的实体.
func (h *Handlers) Pull() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.PullRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}

		resp, err := h.sync.Pull(c.Request.Context(), deviceID(c), req.SinceTimestamp, req.Limit)
		if err != nil {
			fail(c, "pull failed", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// SyncLog 查询同步日志. ?last=push|pull 时只返回最近一次成功的记录.
func (h *Handlers) SyncLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if last := c.Query("last"); last != "" {
			dir := model.Direction(last)
			if dir != model.DirectionPush && dir != model.DirectionPull {
				fail(c, "invalid direction", fmt.Errorf("last must be push or pull: %w", errs.ErrValidationFailed))
				return
			}

			entry, err := h.sync.LastSuccessful(c.Request.Context(), dir)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}

				fail(c, "sync log failed", err)

				return
			}

			c.JSON(http.StatusOK, entry)

			return
		}

		var q types.SyncLogQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			bindFailed(c, err)
			return
		}

		resp, err := h.sync.Logs(c.Request.Context(), q.Direction, q.Limit)
		if err != nil {
			fail(c, "sync log failed", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
