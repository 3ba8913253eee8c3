package service

import (
	"context"
	"testing"

	"wager-server/internal/config"
	"wager-server/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCreateUserWithStartingBalance(t *testing.T) {
	cfg := &config.Config{}
	cfg.Escrow.StartingBalance = 500
	cfg.Escrow.Currency = "CNY"
	config.Set(cfg)
	config.SetCurrent(cfg)

	f := newFakeStore()
	svc := NewUserService(f)

	u, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "alice", TraceID: "t-user"})
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.Equal(t, 500.0, u.Balance)
	require.EqualValues(t, 1, u.Status)

	// 初始余额以调整账本落库，余额可由账本历史推导
	require.Len(t, f.ledgers, 1)
	require.Equal(t, "adjust", f.ledgers[0].BizTypeStr)
	require.Equal(t, 0.0, f.ledgers[0].BeforeAmount)
	require.Equal(t, 500.0, f.ledgers[0].AfterAmount)
	require.Equal(t, "CNY", f.ledgers[0].Currency)
}

func TestCreateUserZeroStartingBalance(t *testing.T) {
	cfg := &config.Config{}
	config.Set(cfg)
	config.SetCurrent(cfg)

	f := newFakeStore()
	svc := NewUserService(f)

	u, err := svc.CreateUser(context.Background(), CreateUserInput{Username: "bob"})
	require.NoError(t, err)
	require.Equal(t, 0.0, u.Balance)
	// 零余额开户不产生账本
	require.Empty(t, f.ledgers)

	_, err = svc.CreateUser(context.Background(), CreateUserInput{Username: ""})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestGetUser(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 100)
	f.users[2] = &model.User{ID: 2, Balance: 0, Status: 0}

	svc := NewUserService(f)

	u, err := svc.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, u.ID)

	// 禁用账户不允许换取令牌
	_, err = svc.GetUser(context.Background(), 2)
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.GetUser(context.Background(), 404)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetBalance(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 123.4)

	svc := NewUserService(f)

	out, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, out.UserID)
	// 金额统一两位小数输出
	require.Equal(t, "123.40", out.Balance)

	_, err = svc.GetBalance(context.Background(), 404)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.GetBalance(context.Background(), 0)
	require.ErrorIs(t, err, ErrBadRequest)
}
