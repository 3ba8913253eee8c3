package mysql

import (
	"context"
	"database/sql"
)

// UseDB: 注入外部初始化好的 *sql.DB（例如 common.InitDB 返回的句柄）
func UseDB(d *sql.DB) {
	if d == nil {
		return
	}
	db = d
}

// UseSlaveDB: 注入只读从库句柄（可选，用于读写分离）
func UseSlaveDB(d *sql.DB) {
	if d == nil {
		return
	}
	slaveDB = d
}

// 全局 *sql.DB 句柄（由 UseDB 注入）
var db *sql.DB

// 只读从库句柄（可选）
var slaveDB *sql.DB

// DB 返回全局 *sql.DB 句柄
func DB() *sql.DB { return db }

// SlaveDB 返回只读从库句柄，未配置时为 nil
func SlaveDB() *sql.DB { return slaveDB }

// Ping 探测数据库连接；未注入句柄时视为不可用之外的中立状态
func Ping(ctx context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext(ctx)
}
