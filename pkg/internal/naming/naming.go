// Package naming 把 (地点ID, 子地点ID, 内容哈希, 扩展名) 映射为规范文件名与归档目录.
// 纯函数，无 I/O；相同输入永远得到相同输出.
package naming

import (
	"path"
	"strings"
	"unicode"
)

// PrefixLen 派生名称中使用的前缀长度.
const PrefixLen = 12

// First12 截取前 12 个字符.
func First12(s string) string {
	if len(s) <= PrefixLen {
		return s
	}

	return s[:PrefixLen]
}

// NormalizeExt 小写并去掉前导点.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimLeft(ext, ".")

	return sanitize(ext)
}

// FileName 返回 {loc12}[-{sub12}]-{hash12}.{ext}.
func FileName(locationID, subLocationID, hash, ext string) string {
	var b strings.Builder

	b.WriteString(First12(locationID))

	if subLocationID != "" {
		b.WriteByte('-')
		b.WriteString(First12(subLocationID))
	}

	b.WriteByte('-')
	b.WriteString(First12(hash))

	if ext = NormalizeExt(ext); ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}

	return b.String()
}

// Folder 返回 {state}-{type}/{short}-{loc12}/{kind}-org-{loc12}/，使用正斜杠.
// 各段先小写并清理，大小写不同的输入落到同一目录.
func Folder(shortName, locationID, state, typ, kind string) string {
	loc := First12(locationID)

	return segment(state) + "-" + segment(typ) + "/" +
		segment(shortName) + "-" + loc + "/" +
		segment(kind) + "-org-" + loc + "/"
}

// Location 派生目录所需的地点信息.
type Location struct {
	ID        string
	ShortName string
	State     string
	Type      string
}

// Placement 一个文件的派生结果.
type Placement struct {
	Folder string // 归档相对目录，带结尾斜杠
	Name   string // 规范文件名
	Path   string // 归档相对路径
}

// Place 同时派生目录与文件名.
func Place(loc Location, subLocationID, kind, hash, ext string) Placement {
	folder := Folder(loc.ShortName, loc.ID, loc.State, loc.Type, kind)
	name := FileName(loc.ID, subLocationID, hash, ext)

	return Placement{Folder: folder, Name: name, Path: path.Join(folder, name)}
}

// maxShortName 短名最多字符数，按 rune 计，多字节字符不会被截断.
const maxShortName = 32

// ShortName 由地点名称生成短名：小写，字母数字以外替换为连字符，最长 32 个字符.
func ShortName(name string) string {
	var b strings.Builder

	dash := false

	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)

			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')

			dash = true
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if runes := []rune(out); len(runes) > maxShortName {
		out = strings.TrimRight(string(runes[:maxShortName]), "-")
	}

	if out == "" {
		return "location"
	}

	return out
}

// segment 单级目录段：去掉路径分隔符、控制字符与前导点，空白折叠为连字符，小写.
func segment(s string) string {
	s = sanitize(strings.ToLower(strings.TrimSpace(s)))
	s = strings.TrimLeft(strings.Join(strings.Fields(s), "-"), ".")

	if s == "" {
		return "unknown"
	}

	return s
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 || unicode.IsControl(r) {
			return -1
		}

		return r
	}, s)
}
