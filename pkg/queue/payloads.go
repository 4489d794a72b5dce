package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// EntityRef 标识一个已归档实体.
type EntityRef struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	LocationID  string `json:"location_id,omitempty"`
	Hash        string `json:"hash,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// EntityImportedPayload 导入完成.
type EntityImportedPayload struct {
	Entity       EntityRef `json:"entity"`
	OriginalName string    `json:"original_name,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	Mirrored     bool      `json:"mirrored,omitempty"`
}

// EntityDuplicatePayload 重复导入.
type EntityDuplicatePayload struct {
	Entity     EntityRef `json:"entity"`
	SourceName string    `json:"source_name,omitempty"`
}

// EntityVerifyFailedPayload 落盘复核失败.
type EntityVerifyFailedPayload struct {
	Kind       string `json:"kind"`
	LocationID string `json:"location_id"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual,omitempty"`
	Path       string `json:"path"`
	Error      string `json:"error"`
}

// SyncPushedPayload 推送处理结果汇总.
type SyncPushedPayload struct {
	DeviceID  string `json:"device_id"`
	LogID     string `json:"log_id"`
	Accepted  int    `json:"accepted"`
	Conflicts int    `json:"conflicts"`
	Rejected  int    `json:"rejected"`
}

// SyncConflictPayload 单个冲突.
type SyncConflictPayload struct {
	DeviceID        string    `json:"device_id"`
	Kind            string    `json:"kind"`
	ID              string    `json:"id"`
	PushedUpdatedAt time.Time `json:"pushed_updated_at"`
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}
