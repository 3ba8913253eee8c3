package redis

import (
	"context"
	"time"

	"wager-server/common"

	goredis "github.com/redis/go-redis/v9"
)

// 全局 Redis 客户端（可选初始化）
var rdb *goredis.Client

// Init 根据配置初始化 Redis 客户端；addr 为空则跳过。
func Init(addr, password string, db int) {
	if addr == "" {
		return
	}
	rdb = common.InitRedis(addr, password, db)
}

// InitSentinel 哨兵模式初始化，主节点故障时客户端自动切换。
func InitSentinel(addrs []string, password, masterName string, db int) {
	if len(addrs) == 0 || masterName == "" {
		return
	}
	rdb = common.InitRedisSentinel(addrs, password, masterName, db)
}

// Client 返回 Redis 客户端实例（可能为 nil）。
func Client() *goredis.Client { return rdb }

// Ping 在给定超时时间内探测 Redis 连接是否可用。
func Ping(ctx context.Context, timeout time.Duration) error {
	if rdb == nil {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(c).Err()
}

// Close 释放连接池，进程退出前调用。
func Close() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

