package model

import (
	"context"
	"database/sql"
	"time"

	"wager-server/common/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// User 对应 users 表
// 余额使用 DECIMAL(18,2) 存储，Go 层以 float64 表示，运算统一走 decimal
// status: 1=正常 0=禁用
type User struct {
	ID        int64   `db:"user_id"`    // 用户ID（主键）
	Username  string  `db:"username"`   // 用户名（可选）
	Balance   float64 `db:"balance"`    // 余额
	Status    int8    `db:"status"`     // 状态: 1=正常 0=禁用
	CreatedAt int64   `db:"created_at"` // 创建时间（13位毫秒时间戳）
	UpdatedAt int64   `db:"updated_at"` // 更新时间（13位毫秒时间戳）
}

// GetUserByID 按用户ID查询（不加锁）
func GetUserByID(ctx context.Context, exec sqlx.ExtContext, userID int64) (*User, error) {
	query := `SELECT user_id, username, balance, status, created_at, updated_at
	          FROM users
	          WHERE user_id = ?
	          LIMIT 1`

	var user User
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get user by id failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// GetUserByIDForUpdate 按用户ID加锁查询（FOR UPDATE）
// 必须在事务中调用；结算时按 user_id 升序依次加锁以避免死锁
func GetUserByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) (*User, error) {
	query := `SELECT user_id, username, balance, status, created_at, updated_at
	          FROM users
	          WHERE user_id = ?
	          FOR UPDATE`

	var user User
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get user by id for update failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// Insert 插入用户（账户开通，初始余额由上层决定）
func (u *User) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `INSERT INTO users (username, balance, status, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, query,
		u.Username, u.Balance, u.Status, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		logger.Error("insert user failed",
			zap.String("username", u.Username),
			zap.Error(err))
		return err
	}

	id, _ := result.LastInsertId()
	u.ID = id

	logger.Info("user created",
		zap.Int64("user_id", u.ID),
		zap.String("username", u.Username),
		zap.Float64("balance", u.Balance))

	return nil
}

// UpdateUserBalance 更新用户余额（两位小数，由调用方负责 decimal 运算与舍入）
func UpdateUserBalance(ctx context.Context, exec sqlx.ExtContext, userID int64, newBalance float64) error {
	now := time.Now().UnixMilli()
	query := `UPDATE users SET balance = ?, updated_at = ? WHERE user_id = ?`

	_, err := exec.ExecContext(ctx, query, newBalance, now, userID)
	if err != nil {
		logger.Error("update user balance failed",
			zap.Int64("user_id", userID),
			zap.Float64("new_balance", newBalance),
			zap.Error(err))
		return err
	}

	return nil
}

// GetUserBalance 非锁查询余额（用于查询接口）
func GetUserBalance(ctx context.Context, exec sqlx.ExtContext, userID int64) (float64, error) {
	query := `SELECT balance FROM users WHERE user_id = ? LIMIT 1`

	var balance float64
	err := sqlx.GetContext(ctx, exec, &balance, query, userID)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Error("get user balance failed",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
		return 0, err
	}

	return balance, nil
}
