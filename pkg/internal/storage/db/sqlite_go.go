//go:build !no_sqlite && !cgo

package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// moderncDSN 使用 modernc 驱动的 _pragma=name(value) 写法，现场设备交叉编译走这一版.
func moderncDSN(path string, busyMS int) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, busyMS)
}

func init() {
	sqliteDSN = moderncDSN
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(dsn)
	})
}
