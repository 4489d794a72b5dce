package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SchedulerJobs 返回所有调度器任务信息.
func (h *Handlers) SchedulerJobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.sched == nil {
			c.JSON(http.StatusOK, gin.H{"jobs": []any{}})
			return
		}

		c.JSON(http.StatusOK, gin.H{"jobs": h.sched.GetJobInfos()})
	}
}

// SchedulerRunJob 立即触发一次任务.
func (h *Handlers) SchedulerRunJob() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.sched == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
			return
		}

		name := c.Param("name")
		if err := h.sched.RunNow(name); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "job triggered", "job": name})
	}
}
