package common

import (
	"context"
	"time"

	"wager-server/common/logger"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 初始化master db
func InitDB(dsn string, maxIdleConn, maxOpenConn int) *sqlx.DB {

	db, err := sqlx.Connect("mysql", dsn+"&parseTime=true&loc=Local")
	if err != nil {
		logger.Fatalf("InitDB sqlx.Connect", zap.Error(err))
	}

	// 连接池参数
	db.SetMaxOpenConns(maxOpenConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// 会话级超时，降低锁等待时长
	if _, err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", 5); err != nil {
		logger.Warn("SET innodb_lock_wait_timeout failed", zap.Error(err))
	}

	err = db.Ping()
	if err != nil {
		logger.Fatalf("InitDB failed:", zap.Error(err))
	}

	return db
}

// 初始化slave db
func InitSlaveDB(dsn string, maxIdleConn, maxOpenConn int) *sqlx.DB {
	db, err := sqlx.Connect("mysql", dsn+"&parseTime=true&loc=Local")
	if err != nil {
		logger.Fatalf("InitSlaveDB  sqlx.Connect failed:", zap.Error(err))
	}

	// 连接池参数
	db.SetMaxOpenConns(maxOpenConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// 会话级超时，降低锁等待时长（从库通常不事务写，但保持一致；失败仅记录告警）
	if _, err := db.Exec("SET SESSION innodb_lock_wait_timeout = ?", 5); err != nil {
		logger.Warn("SET innodb_lock_wait_timeout (slave) failed", zap.Error(err))
	}

	err = db.Ping()
	if err != nil {
		logger.Fatalf("InitSlaveDB failed:", zap.Error(err))
	}

	return db
}

// 初始化Redis连接
func InitRedis(dsn string, psd string, db int) *redis.Client {
	reddb := redis.NewClient(&redis.Options{
		Network:         "tcp",
		Addr:            dsn,
		Username:        "",
		DB:              db,
		Password:        psd,
		DialTimeout:     10 * time.Second, // 设置连接超时
		ReadTimeout:     10 * time.Second, // 设置读取超时
		WriteTimeout:    5 * time.Second,  // 设置写入超时
		PoolSize:        500,              // 连接池最大socket连接数，默认为5倍CPU数， 5 * runtime.NumCPU
		MinIdleConns:    100,              // 在启动阶段创建指定数量的Idle连接，并长期维持idle状态的连接数不少于指定数量
		PoolTimeout:     11 * time.Second, // 当所有连接都处在繁忙状态时，客户端等待可用连接的最大等待时长，默认为读超时+1秒
		MaxRetries:      1,                // 命令执行失败时，最多重试多少次，默认为0即不重试
		ConnMaxIdleTime: 2 * time.Minute,  // 闲置超时，-1表示取消闲置超时检查
	})
	return reddb
}

// 初始化Redis哨兵连接
func InitRedisSentinel(dsn []string, psd, name string, db int) *redis.Client {
	reddb := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:      name,
		SentinelAddrs:   dsn,
		Password:        psd,
		DB:              db,
		DialTimeout:     10 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		PoolSize:        100,
		PoolTimeout:     30 * time.Second,
		MaxRetries:      2,
		ConnMaxIdleTime: 5 * time.Minute,
	})
	_, err := reddb.Ping(context.Background()).Result()
	if err != nil {
		logger.Fatalf("initRedisSentinel failed:", zap.Error(err))

	}

	return reddb
}
