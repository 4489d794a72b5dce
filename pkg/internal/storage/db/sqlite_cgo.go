//go:build !no_sqlite && cgo

package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// mattnDSN 使用 mattn/go-sqlite3 的 _xxx 参数. _txlock=immediate 让写事务
// 一开始就拿写锁，导入与同步推送不会在升级锁时撞上 SQLITE_BUSY.
func mattnDSN(path string, busyMS int) string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1&_synchronous=NORMAL&_txlock=immediate",
		path, busyMS)
}

func init() {
	sqliteDSN = mattnDSN
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(dsn)
	})
}
