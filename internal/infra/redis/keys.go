package redis

import "strconv"

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串，便于统一维护与变更。

const (
	// PrefixSettleIdemResult：结算幂等“结果缓存”Key 的前缀。
	// 作用：缓存某个 idempotency key 对应的第一次成功结果（SettleOutput JSON），用于后续重复请求直接返回。
	PrefixSettleIdemResult = "settle:idem:result:"
	// PrefixSettleIdemLock：结算幂等“进行中锁”Key 的前缀。
	// 作用：使用 SETNX + TTL 标记 idempotency key 正在处理，吸收瞬时重复请求，减轻数据库压力。
	PrefixSettleIdemLock = "settle:idem:lock:"

	// PrefixGameSnapshot：对局快照缓存，用于查询接口快速返回
	PrefixGameSnapshot = "game:snapshot:"
	// PrefixSettleResult：结算结果缓存
	PrefixSettleResult = "game:settle:"
)

// IdemResultKey：构造幂等“结果缓存”的完整 Key。
// 形如：settle:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixSettleIdemResult + k }

// IdemLockKey：构造幂等“进行中锁”的完整 Key。
// 形如：settle:idem:lock:{idempotency_key}
func IdemLockKey(k string) string { return PrefixSettleIdemLock + k }

// GameSnapshotKey：构造对局快照缓存 Key。形如：game:snapshot:{game_id}
func GameSnapshotKey(gameID int64) string { return PrefixGameSnapshot + strconv.FormatInt(gameID, 10) }

// SettleResultKey：构造结算结果缓存 Key。形如：game:settle:{game_id}
func SettleResultKey(gameID int64) string { return PrefixSettleResult + strconv.FormatInt(gameID, 10) }
