package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SettlementLog 结算日志表（防止重复结算）
// game_id 上有唯一索引，同一对局第二次插入会返回 1062 冲突
type SettlementLog struct {
	ID          int64   `db:"id"`           // 自增ID
	GameID      int64   `db:"game_id"`      // 对局ID（唯一索引）
	SettleNo    string  `db:"settle_no"`    // 结算单号
	WinnerID    int64   `db:"winner_id"`    // 胜者ID
	TotalPool   float64 `db:"total_pool"`   // 奖池总额（双方入场费之和）
	OwnerShare  float64 `db:"owner_share"`  // 平台抽成金额
	WinnerShare float64 `db:"winner_share"` // 胜者派彩金额
	Operator    string  `db:"operator"`     // 操作人
	TraceID     string  `db:"trace_id"`     // 链路追踪ID
	CreatedAt   int64   `db:"created_at"`   // 创建时间（13位毫秒时间戳）
}

// CreateSettlementLog 创建结算日志（利用唯一索引防止重复结算）
// 如果返回唯一键冲突错误，说明该对局已经结算过
func CreateSettlementLog(ctx context.Context, exec sqlx.ExtContext, log *SettlementLog) error {
	now := time.Now().UnixMilli()
	log.CreatedAt = now

	sqlStr := `INSERT INTO settlement_log (game_id, settle_no, winner_id, total_pool, owner_share, winner_share, operator, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, sqlStr,
		log.GameID, log.SettleNo, log.WinnerID, log.TotalPool, log.OwnerShare, log.WinnerShare, log.Operator, log.TraceID, log.CreatedAt)

	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	log.ID = id

	return nil
}

// GetSettlementLog 查询结算日志
func GetSettlementLog(ctx context.Context, db *sqlx.DB, gameID int64) (*SettlementLog, error) {
	sqlStr := `SELECT id, game_id, settle_no, winner_id, total_pool, owner_share, winner_share, operator, trace_id, created_at
	           FROM settlement_log WHERE game_id = ? LIMIT 1`

	var log SettlementLog
	if err := db.GetContext(ctx, &log, sqlStr, gameID); err != nil {
		return nil, err
	}

	return &log, nil
}
