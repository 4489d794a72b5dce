package model

import "strings"

// Kind 实体种类标签，同时作为归档目录中的 {kind} 段.
type Kind string

const (
	KindLocation Kind = "loc"
	KindImage    Kind = "img"
	KindVideo    Kind = "vid"
	KindDocument Kind = "doc"
	KindMap      Kind = "map"
	KindURL      Kind = "url"
)

// Kinds 返回全部实体种类，顺序固定.
func Kinds() []Kind {
	return []Kind{KindLocation, KindImage, KindVideo, KindDocument, KindMap, KindURL}
}

// ParseKind 解析种类标签.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}

	return "", false
}

// Table 返回种类对应的表名.
func (k Kind) Table() string {
	switch k {
	case KindLocation:
		return "locations"
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case KindDocument:
		return "documents"
	case KindMap:
		return "map_files"
	case KindURL:
		return "urls"
	default:
		return ""
	}
}

// FileBacked 报告该种类是否有归档文件.
func (k Kind) FileBacked() bool {
	switch k {
	case KindImage, KindVideo, KindDocument, KindMap:
		return true
	default:
		return false
	}
}

// New 返回该种类的空记录.
func (k Kind) New() Record {
	switch k {
	case KindLocation:
		return &Location{}
	case KindImage:
		return &Image{}
	case KindVideo:
		return &Video{}
	case KindDocument:
		return &Document{}
	case KindMap:
		return &MapFile{}
	case KindURL:
		return &URL{}
	default:
		return nil
	}
}

var extKinds = map[string]Kind{
	"jpg": KindImage, "jpeg": KindImage, "png": KindImage, "gif": KindImage, "bmp": KindImage,
	"tif": KindImage, "tiff": KindImage, "webp": KindImage, "heic": KindImage, "heif": KindImage,
	"dng": KindImage, "cr2": KindImage, "cr3": KindImage, "nef": KindImage, "arw": KindImage,
	"raf": KindImage, "orf": KindImage, "rw2": KindImage,

	"mp4": KindVideo, "mov": KindVideo, "avi": KindVideo, "mkv": KindVideo, "m4v": KindVideo,
	"mts": KindVideo, "m2ts": KindVideo, "wmv": KindVideo, "webm": KindVideo, "3gp": KindVideo,
	"mpg": KindVideo, "mpeg": KindVideo,

	"kml": KindMap, "kmz": KindMap, "gpx": KindMap, "geojson": KindMap, "shp": KindMap,
}

// KindForExt 按扩展名归类文件，未知扩展名归为文档.
func KindForExt(ext string) Kind {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if k, ok := extKinds[ext]; ok {
		return k
	}

	return KindDocument
}
