package model

import (
	"context"
	"database/sql"
	"time"

	"wager-server/common"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

// Game 对应 games 表
// status: 1=waiting 2=active 3=settled（数值码，字符串映射见 service 层）
// player2_id/winner_id 在未设置时为 NULL
// 不变式：
//   - player2_id 为 NULL 当且仅当 status=waiting
//   - settled 之后整行只读，结算至多执行一次（settlement_log 唯一键兜底）
type Game struct {
	ID        int64         `db:"game_id"`    // 对局ID（主键）
	Player1ID int64         `db:"player1_id"` // 创建者（玩家1）
	Player2ID sql.NullInt64 `db:"player2_id"` // 玩家2，join 时一次性写入
	EntryFee  float64       `db:"entry_fee"`  // 单人入场费（非负，创建时固定）
	OwnerCut  float64       `db:"owner_cut"`  // 平台抽成百分比 [0,100]，创建时固定
	Status    int8          `db:"status"`     // 状态码
	WinnerID  sql.NullInt64 `db:"winner_id"`  // 胜者，结算时写入
	SettleNo  string        `db:"settle_no"`  // 结算单号，结算时写入
	TraceID   string        `db:"trace_id"`   // 链路追踪ID
	CreatedAt int64         `db:"created_at"` // 创建时间（13位毫秒时间戳）
	UpdatedAt int64         `db:"updated_at"` // 更新时间（13位毫秒时间戳）
}

const gameColumns = `game_id, player1_id, player2_id, entry_fee, owner_cut, status, winner_id, settle_no, trace_id, created_at, updated_at`

// Insert 创建对局（status=1 waiting，player2/winner 为 NULL）
func (g *Game) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.Status = 1

	sqlStr := `INSERT INTO games (player1_id, entry_fee, owner_cut, status, settle_no, trace_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, sqlStr,
		g.Player1ID, g.EntryFee, g.OwnerCut, g.Status, "", g.TraceID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	g.ID = id
	return nil
}

// GetGame 按对局ID查询（不加锁，用于查询接口）
func GetGame(ctx context.Context, exec sqlx.ExtContext, gameID int64) (*Game, error) {
	sqlStr := `SELECT ` + gameColumns + ` FROM games WHERE game_id = ? LIMIT 1`

	var g Game
	if err := sqlx.GetContext(ctx, exec, &g, sqlStr, gameID); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGameForUpdate 按对局ID加锁查询（FOR UPDATE），必须在事务中调用
func GetGameForUpdate(ctx context.Context, exec sqlx.ExtContext, gameID int64) (*Game, error) {
	sqlStr := `SELECT ` + gameColumns + ` FROM games WHERE game_id = ? FOR UPDATE`

	var g Game
	if err := sqlx.GetContext(ctx, exec, &g, sqlStr, gameID); err != nil {
		return nil, err
	}
	return &g, nil
}

// JoinGame 条件更新：仅当对局仍为 waiting 且 player2 未设置时写入玩家2并激活
// 返回是否命中（false 表示已被并发 join 抢先或状态已推进）
func JoinGame(ctx context.Context, exec sqlx.ExtContext, gameID, player2ID int64) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE games SET player2_id = ?, status = 2, updated_at = ?
	           WHERE game_id = ? AND status = 1 AND player2_id IS NULL`

	res, err := exec.ExecContext(ctx, sqlStr, player2ID, now, gameID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ActivateGame 条件更新：waiting -> active（join 与激活解耦的部署使用）
func ActivateGame(ctx context.Context, exec sqlx.ExtContext, gameID int64) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE games SET status = 2, updated_at = ? WHERE game_id = ? AND status = 1`

	res, err := exec.ExecContext(ctx, sqlStr, now, gameID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkGameSettled 条件更新：active -> settled，写入胜者与结算单号
// 仅当当前状态为 active 时命中，保证结算只生效一次
func MarkGameSettled(ctx context.Context, exec sqlx.ExtContext, gameID, winnerID int64, settleNo string) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := `UPDATE games SET status = 3, winner_id = ?, settle_no = ?, updated_at = ?
	           WHERE game_id = ? AND status = 2`

	res, err := exec.ExecContext(ctx, sqlStr, winnerID, settleNo, now, gameID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOpenGames 查询可加入的对局（大厅列表），按创建时间倒序
// 列表查询走通用查询封装，便于后续叠加筛选条件
func ListOpenGames(ctx context.Context, db *sqlx.DB, limit uint) ([]Game, error) {
	if limit == 0 || limit > 200 {
		limit = 50
	}

	var list []Game
	err := common.SelectAllCtx(ctx, &list, common.QueryArg{
		Db:     db,
		Table:  "games",
		Fields: common.EnumFields(Game{}),
		Ex:     []exp.Expression{goqu.Ex{"status": 1}},
		Order:  []exp.OrderedExpression{goqu.I("created_at").Desc()},
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GameSnapshot 提供 GET 接口所需的最小字段集合（Redis 缓存与查询响应共用）
type GameSnapshot struct {
	GameID    int64   `json:"game_id"`
	Player1ID int64   `json:"player1_id"`
	Player2ID *int64  `json:"player2_id,omitempty"`
	EntryFee  string  `json:"entry_fee"`
	OwnerCut  float64 `json:"owner_cut"`
	Status    string  `json:"status"`
	WinnerID  *int64  `json:"winner_id,omitempty"`
	SettleNo  string  `json:"settle_no,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}
