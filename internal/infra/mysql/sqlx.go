package mysql

import (
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	once   sync.Once
	sqlxDB *sqlx.DB

	slaveOnce   sync.Once
	slaveSqlxDB *sqlx.DB
)

// SQLX 返回包装全局句柄的 *sqlx.DB，首次调用时构建
// 必须在 UseDB 注入之后调用，否则返回 nil
func SQLX() *sqlx.DB {
	once.Do(func() {
		if DB() != nil {
			sqlxDB = sqlx.NewDb(DB(), "mysql")
		}
	})
	return sqlxDB
}

// SlaveSQLX 返回包装从库句柄的 *sqlx.DB；未配置从库时返回 nil，调用方回退主库
func SlaveSQLX() *sqlx.DB {
	slaveOnce.Do(func() {
		if SlaveDB() != nil {
			slaveSqlxDB = sqlx.NewDb(SlaveDB(), "mysql")
		}
	})
	return slaveSqlxDB
}
