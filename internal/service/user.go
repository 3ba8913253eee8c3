package service

import (
	"context"
	"errors"
	"fmt"

	chelper "wager-server/common/helper"
	"wager-server/internal/config"
	"wager-server/internal/model"
	"wager-server/internal/store"

	decimal "github.com/shopspring/decimal"
)

// 用户账户业务逻辑（开户与余额查询）

type CreateUserInput struct {
	Username string
	TraceID  string
}

type BalanceOutput struct {
	UserID  int64  `json:"user_id"`
	Balance string `json:"balance"`
}

type UserService interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	GetBalance(ctx context.Context, userID int64) (*BalanceOutput, error)
}

type userService struct {
	st store.Store
}

func NewUserService(st store.Store) UserService { return &userService{st: st} }

// CreateUser 账户开通，初始余额来自配置 escrow.starting_balance
func (s *userService) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username required", ErrBadRequest)
	}

	starting := 0.0
	if cfg := config.Get(); cfg != nil {
		starting = cfg.Escrow.StartingBalance
	}

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.st.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	u := &model.User{
		Username: in.Username,
		Balance:  decimal.NewFromFloat(starting).Round(2).InexactFloat64(),
		Status:   1,
	}
	if err := tx.InsertUser(txCtx, u); err != nil {
		return nil, err
	}

	// 初始余额不为零时落一条调整账本，保证余额可由账本历史推导
	if u.Balance != 0 {
		ledger := &model.WalletLedger{
			UserID:       u.ID,
			BizType:      4,
			BizTypeStr:   "adjust",
			Amount:       u.Balance,
			BeforeAmount: 0,
			AfterAmount:  u.Balance,
			Currency:     currencyOrDefault(),
			Remark:       "account provisioning",
			TraceID:      in.TraceID,
		}
		if err := tx.InsertLedger(txCtx, ledger); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	fmt.Printf("[User] 账户开通完成: user_id=%d, username=%s, balance=%.2f, trace_id=%s\n",
		u.ID, u.Username, u.Balance, in.TraceID)
	return u, nil
}

// GetUser 按用户ID查询（签发 Token 前校验用户存在且状态正常）
func (s *userService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", ErrBadRequest)
	}

	u, err := s.st.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.Status != 1 {
		return nil, fmt.Errorf("%w: user disabled", ErrBadRequest)
	}
	return u, nil
}

// GetBalance 余额查询（非锁读取）
func (s *userService) GetBalance(ctx context.Context, userID int64) (*BalanceOutput, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", ErrBadRequest)
	}

	u, err := s.st.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &BalanceOutput{
		UserID:  u.ID,
		Balance: chelper.TrimDecimal(decimal.NewFromFloat(u.Balance)),
	}, nil
}

func currencyOrDefault() string {
	if cfg := config.Get(); cfg != nil && cfg.Escrow.Currency != "" {
		return cfg.Escrow.Currency
	}
	return "CNY"
}
