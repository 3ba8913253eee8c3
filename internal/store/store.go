package store

import (
	"context"
	"errors"

	"wager-server/internal/model"
)

// 存储层统一错误（由各实现负责从驱动错误映射）
var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey 唯一键冲突（MySQL 1062）
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store 托管账本存储接口
// 读操作走 Store，写操作（余额变更、状态推进、账本落库）必须在 Tx 内完成
type Store interface {
	// Begin 开启事务
	Begin(ctx context.Context) (Tx, error)

	// GetGame 按对局ID查询（不加锁）
	GetGame(ctx context.Context, gameID int64) (*model.Game, error)
	// ListOpenGames 查询可加入的对局列表
	ListOpenGames(ctx context.Context, limit uint) ([]model.Game, error)
	// GetUser 按用户ID查询（不加锁）
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	// GetSettlementLog 按对局ID查询结算日志
	GetSettlementLog(ctx context.Context, gameID int64) (*model.SettlementLog, error)
	// ListLedgerByGame 查询某场对局的全部账本记录
	ListLedgerByGame(ctx context.Context, gameID int64) ([]model.WalletLedger, error)
}

// Tx 事务内操作集合
// Commit 前任何一步失败，调用方应 Rollback，整个结算原子生效或全部回滚
type Tx interface {
	Commit() error
	Rollback() error

	// InsertGame 创建对局（回填自增ID）
	InsertGame(ctx context.Context, g *model.Game) error
	// GetGameForUpdate 加锁读取对局行
	GetGameForUpdate(ctx context.Context, gameID int64) (*model.Game, error)
	// JoinGame 条件写入玩家2并激活，返回是否命中
	JoinGame(ctx context.Context, gameID, player2ID int64) (bool, error)
	// ActivateGame waiting -> active 条件推进，返回是否命中
	ActivateGame(ctx context.Context, gameID int64) (bool, error)
	// MarkGameSettled active -> settled 条件推进，返回是否命中
	MarkGameSettled(ctx context.Context, gameID, winnerID int64, settleNo string) (bool, error)

	// InsertUser 账户开通（回填自增ID）
	InsertUser(ctx context.Context, u *model.User) error
	// GetUserForUpdate 加锁读取用户行（调用方负责按 user_id 升序加锁）
	GetUserForUpdate(ctx context.Context, userID int64) (*model.User, error)
	// UpdateUserBalance 覆盖写用户余额
	UpdateUserBalance(ctx context.Context, userID int64, newBalance float64) error

	// InsertLedger 追加账本记录
	InsertLedger(ctx context.Context, l *model.WalletLedger) error
	// CreateSettlementLog 创建结算日志，重复结算返回 ErrDuplicateKey
	CreateSettlementLog(ctx context.Context, log *model.SettlementLog) error
	// InsertAudit 追加状态机审计记录
	InsertAudit(ctx context.Context, a *model.GameAudit) error
	// CreateOutbox 写入事务消息
	CreateOutbox(ctx context.Context, topic, bizKey string, payload any) error
	// InsertIdempotencyKey 占用幂等键，重复返回 ErrDuplicateKey
	InsertIdempotencyKey(ctx context.Context, key, purpose, ref string) error
}
