// Package model 定义权威库与现场设备共用的 gorm 模型.
package model

import "time"

// Entity 所有实体表共有的列.
//
// UpdatedAt 是逻辑记录时间，由写入方（桌面导入或现场设备）决定，gorm 不自动改写；
// ModifiedAt 是服务端分配的严格递增修订号（unix 纳秒），作为拉取水位线.
type Entity struct {
	ID         string    `gorm:"primaryKey;size:36"          json:"id"`
	DeviceID   string    `gorm:"size:128"                    json:"device_id,omitempty"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"        json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false;index"  json:"updated_at"`
	ModifiedAt int64     `gorm:"index"                       json:"modified_at"`
}

// Base 返回公共列.
func (e *Entity) Base() *Entity { return e }

// Record 是任意实体行.
type Record interface {
	Kind() Kind
	TableName() string
	Base() *Entity
}

// Location 地点. GPS 可为空（桌面创建的地点）.
type Location struct {
	Entity

	Name      string   `gorm:"size:255;index;not null" json:"name"`
	ShortName string   `gorm:"size:64"                 json:"short_name"`
	State     string   `gorm:"size:32"                 json:"state"`
	Type      string   `gorm:"size:64"                 json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (Location) TableName() string { return KindLocation.Table() }
func (Location) Kind() Kind        { return KindLocation }

// MediaFile 有归档文件的实体公共列. Hash 在每张表内唯一.
type MediaFile struct {
	Entity

	LocationID    string `gorm:"size:36;index;not null" json:"location_id"`
	SubLocationID string `gorm:"size:36"                json:"sub_location_id,omitempty"`
	Hash          string `gorm:"size:64;uniqueIndex"    json:"hash"`
	OriginalName  string `gorm:"size:512"               json:"original_name"`
	CanonicalName string `gorm:"size:128"               json:"canonical_name"`
	ArchivePath   string `gorm:"size:1024"              json:"archive_path"`
	Extension     string `gorm:"size:16"                json:"extension"`
	Size          int64  `json:"size"`
}

// File 返回文件列.
func (m *MediaFile) File() *MediaFile { return m }

// FileRecord 是有归档文件的实体行.
type FileRecord interface {
	Record
	File() *MediaFile
}

type Image struct{ MediaFile }

func (Image) TableName() string { return KindImage.Table() }
func (Image) Kind() Kind        { return KindImage }

type Video struct{ MediaFile }

func (Video) TableName() string { return KindVideo.Table() }
func (Video) Kind() Kind        { return KindVideo }

type Document struct{ MediaFile }

func (Document) TableName() string { return KindDocument.Table() }
func (Document) Kind() Kind        { return KindDocument }

type MapFile struct{ MediaFile }

func (MapFile) TableName() string { return KindMap.Table() }
func (MapFile) Kind() Kind        { return KindMap }

// URL 关联到地点的网页.
type URL struct {
	Entity

	LocationID    string `gorm:"size:36;index;not null" json:"location_id"`
	SubLocationID string `gorm:"size:36"                json:"sub_location_id,omitempty"`
	URL           string `gorm:"size:2048;not null"     json:"url"`
	Title         string `gorm:"size:512"               json:"title"`
}

func (URL) TableName() string { return KindURL.Table() }
func (URL) Kind() Kind        { return KindURL }

// All 返回全部实体模型，用于迁移.
func All() []any {
	return []any{&Location{}, &Image{}, &Video{}, &Document{}, &MapFile{}, &URL{}, &SyncLog{}}
}
