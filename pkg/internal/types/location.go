package types

// CreateLocationRequest 新建地点（桌面端或命令行）.
type CreateLocationRequest struct {
	Name      string   `form:"name"       json:"name"                 rule:"required,max=255"`
	ShortName string   `form:"short_name" json:"short_name,omitempty" rule:"omitempty,max=64,segment"`
	State     string   `form:"state"      json:"state"                rule:"required,max=32,segment"`
	Type      string   `form:"type"       json:"type"                 rule:"required,max=64,segment"`
	Latitude  *float64 `form:"latitude"   json:"latitude,omitempty"   rule:"omitempty,latitude"`
	Longitude *float64 `form:"longitude"  json:"longitude,omitempty"  rule:"omitempty,longitude"`
}

// LocationInfo 地点信息.
type LocationInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ShortName string   `json:"short_name"`
	State     string   `json:"state"`
	Type      string   `json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	DeviceID  string   `json:"device_id,omitempty"`
}

// ListLocationsResponse 地点列表.
type ListLocationsResponse struct {
	Locations []LocationInfo `json:"locations"`
}
