package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// GameAudit 对应 game_audit 表（状态机审计）
// event_type 采用数值枚举（1=game_create 2=game_join 3=game_start 4=game_settle）
// prev_state/next_state 使用字符串快照，便于直观查询
type GameAudit struct {
	ID int64 `db:"id"`
	// 对局ID
	GameID int64 `db:"game_id"`
	// 事件类型（数值：1=game_create 2=game_join 3=game_start 4=game_settle）
	EventType int8   `db:"event_type"`
	PrevState string `db:"prev_state"`
	NextState string `db:"next_state"`
	Operator  string `db:"operator"`
	Source    string `db:"source"`
	Payload   string `db:"payload"`
	TraceID   string `db:"trace_id"`
	CreatedAt int64  `db:"created_at"`
}

// Insert
func (e *GameAudit) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()

	sqlStr := "INSERT INTO game_audit (game_id, event_type, prev_state, next_state, operator, source, payload, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	args := []interface{}{e.GameID, e.EventType, e.PrevState, e.NextState, e.Operator, e.Source, e.Payload, e.TraceID, now}

	_, err := exec.ExecContext(ctx, sqlStr, args...)
	return err
}
