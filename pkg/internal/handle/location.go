package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

// CreateLocation 新建地点.
func (h *Handlers) CreateLocation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreateLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}

		info, err := h.locations.Create(c.Request.Context(), &req)
		if err != nil {
			fail(c, "create location failed", err)
			return
		}

		c.JSON(http.StatusCreated, info)
	}
}

// ListLocations 列出地点.
func (h *Handlers) ListLocations() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := h.locations.List(c.Request.Context())
		if err != nil {
			fail(c, "list locations failed", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// GetLocation 按 ID、前缀或短名读取地点.
func (h *Handlers) GetLocation() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, err := h.locations.Resolve(c.Request.Context(), c.Param("ref"))
		if err != nil {
			fail(c, "get location failed", err)
			return
		}

		c.JSON(http.StatusOK, types.LocationInfo{
			ID:        loc.ID,
			Name:      loc.Name,
			ShortName: loc.ShortName,
			State:     loc.State,
			Type:      loc.Type,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			DeviceID:  loc.DeviceID,
		})
	}
}
