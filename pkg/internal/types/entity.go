package types

import (
	"fmt"
	"time"

	"github.com/bizzlechizzle/aupat/pkg/rule"
)

// Entity 同步线路上的实体信封. Kind 决定携带哪一组字段：
// loc 携带 Location，url 携带 URL；img/vid/doc/map 只出现在拉取结果中，携带 File.
type Entity struct {
	Kind       string          `json:"kind"                  rule:"required,oneof=loc img vid doc map url"`
	ID         string          `json:"id"                    rule:"required,uuid4"`
	DeviceID   string          `json:"device_id,omitempty"   rule:"omitempty,max=128"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"            rule:"required"`
	ModifiedAt int64           `json:"modified_at,omitempty"` // 服务端修订号，仅拉取结果
	Location   *LocationFields `json:"location,omitempty"`
	URL        *URLFields      `json:"url,omitempty"`
	File       *FileFields     `json:"file,omitempty"`
	Media      []Media         `json:"media,omitempty"`
}

// LocationFields 地点字段. 坐标可为空.
type LocationFields struct {
	Name      string   `json:"name"                 rule:"required,max=255"`
	ShortName string   `json:"short_name,omitempty" rule:"omitempty,max=64,segment"`
	State     string   `json:"state,omitempty"      rule:"omitempty,max=32,segment"`
	Type      string   `json:"type,omitempty"       rule:"omitempty,max=64,segment"`
	Latitude  *float64 `json:"latitude,omitempty"   rule:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty"  rule:"omitempty,longitude"`
}

// URLFields 网页字段.
type URLFields struct {
	LocationID    string `json:"location_id"               rule:"required,uuid4"`
	SubLocationID string `json:"sub_location_id,omitempty" rule:"omitempty,uuid4"`
	URL           string `json:"url"                       rule:"required,url,max=2048"`
	Title         string `json:"title,omitempty"           rule:"max=512"`
}

// FileFields 归档文件元数据.
type FileFields struct {
	LocationID    string `json:"location_id"`
	SubLocationID string `json:"sub_location_id,omitempty"`
	Hash          string `json:"hash"`
	OriginalName  string `json:"original_name"`
	CanonicalName string `json:"canonical_name"`
	ArchivePath   string `json:"archive_path"`
	Extension     string `json:"extension"`
	Size          int64  `json:"size"`
	Verified      bool   `json:"verified"`
}

// Media 内联媒体. 内容哈希在服务端导入时计算.
type Media struct {
	ID            string `json:"id,omitempty"              rule:"omitempty,uuid4"`
	SubLocationID string `json:"sub_location_id,omitempty" rule:"omitempty,uuid4"`
	Filename      string `json:"filename"                  rule:"required,max=255,segment"`
	Base64Data    string `json:"base64_data"               rule:"required"`
}

// Pushable 报告该种类是否可以由现场设备推送.
func Pushable(kind string) bool {
	return kind == "loc" || kind == "url"
}

// Validate 校验信封及其对应种类的字段组.
func (e *Entity) Validate() error {
	if err := rule.ValidateStruct(e); err != nil {
		return err
	}

	switch e.Kind {
	case "loc":
		if e.Location == nil {
			return fmt.Errorf("kind loc requires location fields")
		}

		if err := rule.ValidateStruct(e.Location); err != nil {
			return err
		}
	case "url":
		if e.URL == nil {
			return fmt.Errorf("kind url requires url fields")
		}

		if err := rule.ValidateStruct(e.URL); err != nil {
			return err
		}

		if len(e.Media) > 0 {
			return fmt.Errorf("kind url does not carry media")
		}
	}

	for i := range e.Media {
		if err := rule.ValidateStruct(&e.Media[i]); err != nil {
			return fmt.Errorf("media[%d]: %w", i, err)
		}
	}

	return nil
}
