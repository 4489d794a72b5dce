package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid"
)

// Direction 同步方向.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Outcome 一次同步的整体结果.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// SyncLog 追加写的同步日志，两端共用. 写入后不再修改.
type SyncLog struct {
	ID            string    `gorm:"primaryKey;size:26"    json:"id"`
	Direction     Direction `gorm:"size:8;index"          json:"direction"`
	DeviceID      string    `gorm:"size:128;index"        json:"device_id"`
	Timestamp     time.Time `gorm:"index"                 json:"timestamp"`
	ItemCount     int       `json:"item_count"`
	ConflictCount int       `json:"conflict_count"`
	RejectedCount int       `json:"rejected_count"`
	Outcome       Outcome   `gorm:"size:16;index"         json:"outcome"`
	Detail        string    `gorm:"type:text"             json:"detail,omitempty"`
}

func (SyncLog) TableName() string { return "sync_logs" }

// NewULID 返回按时间排序的 ULID 字符串.
func NewULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewSyncLog 创建一条日志，ID 为 ULID.
func NewSyncLog(dir Direction, deviceID string, now time.Time) *SyncLog {
	now = now.UTC()

	return &SyncLog{
		ID:        NewULID(now),
		Direction: dir,
		DeviceID:  deviceID,
		Timestamp: now,
		Outcome:   OutcomeSuccess,
	}
}

// Settle 根据计数确定整体结果.
func (l *SyncLog) Settle() {
	switch {
	case l.ItemCount > 0 && l.RejectedCount == l.ItemCount:
		l.Outcome = OutcomeFailed
	case l.RejectedCount > 0 || l.ConflictCount > 0:
		l.Outcome = OutcomePartial
	default:
		l.Outcome = OutcomeSuccess
	}
}
