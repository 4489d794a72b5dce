package types

import "time"

// 单个推送实体的处理结果.
const (
	OutcomeAccepted = "accepted"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
)

// 推送整体状态.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// PushRequest 现场设备推送的一批实体.
type PushRequest struct {
	DeviceID        string    `json:"device_id"        rule:"omitempty,max=128"` // 缺省时取 X-Device-ID
	NewEntities     []Entity  `json:"new_entities"`
	UpdatedEntities []Entity  `json:"updated_entities"`
	DeviceTimestamp time.Time `json:"device_timestamp"`
}

// Len 返回实体总数.
func (r *PushRequest) Len() int {
	return len(r.NewEntities) + len(r.UpdatedEntities)
}

// PushResponse 推送结果.
type PushResponse struct {
	Status        string       `json:"status"`
	SyncedCount   int          `json:"synced_count"`
	Conflicts     []Conflict   `json:"conflicts"`
	NextSyncAfter int          `json:"next_sync_after"` // 秒
	Results       []ItemResult `json:"results"`
	LogID         string       `json:"log_id,omitempty"`
}

// Conflict 未被应用的更新.
type Conflict struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	PushedUpdatedAt time.Time `json:"pushed_updated_at"`
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}

// ItemResult 单个实体的结果.
type ItemResult struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind"`
	Outcome string        `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
	Media   []MediaResult `json:"media,omitempty"`
}

// MediaResult 单个内联媒体的导入结果.
type MediaResult struct {
	Filename  string `json:"filename"`
	EntityID  string `json:"entity_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PullRequest 拉取请求. SinceTimestamp 为上次拉取的水位线（服务端修订号）.
type PullRequest struct {
	SinceTimestamp int64 `json:"since_timestamp" rule:"min=0"`
	Limit          int   `json:"limit"           rule:"min=0"`
}

// PullResponse 按修订号升序的一页实体.
type PullResponse struct {
	Entities  []Entity `json:"entities"`
	HasMore   bool     `json:"has_more"`
	Watermark int64    `json:"watermark"`
}

// SyncLogEntry 同步日志条目.
type SyncLogEntry struct {
	ID            string    `json:"id"`
	Direction     string    `json:"direction"`
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	ItemCount     int       `json:"item_count"`
	ConflictCount int       `json:"conflict_count"`
	RejectedCount int       `json:"rejected_count"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
}

// SyncLogQuery 查询同步日志.
type SyncLogQuery struct {
	Direction string `form:"direction" json:"direction" rule:"omitempty,oneof=push pull"`
	Limit     int    `form:"limit"     json:"limit"     rule:"omitempty,min=1,max=500"`
}

// SyncLogResponse 同步日志列表.
type SyncLogResponse struct {
	Entries []SyncLogEntry `json:"entries"`
}
