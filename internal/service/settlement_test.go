package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"wager-server/internal/config"
	"wager-server/internal/model"

	"github.com/stretchr/testify/require"
)

func setEscrowConfig(ownerID int64, allowOverdraft bool) {
	cfg := &config.Config{}
	cfg.Escrow.OwnerUserID = ownerID
	cfg.Escrow.AllowOverdraft = allowOverdraft
	cfg.Escrow.Currency = "CNY"
	config.Set(cfg)
	config.SetCurrent(cfg)
}

func activeGame(id, p1, p2 int64, fee, cut float64) *model.Game {
	return &model.Game{
		ID:        id,
		Player1ID: p1,
		Player2ID: sql.NullInt64{Int64: p2, Valid: true},
		EntryFee:  fee,
		OwnerCut:  cut,
		Status:    2,
	}
}

// 标准场景：双方各 500 入场费 100 抽成 10%
// 奖池 200，平台 20，胜者 180；胜者最终 580，败者 400，平台 20
func TestSettleGameSplitAndConservation(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	out, err := svc.SettleGame(context.Background(), SettleInput{
		GameID: 1, WinnerID: 1, Operator: "tester", TraceID: "t-split",
	})
	require.NoError(t, err)
	require.Equal(t, "200.00", out.TotalPool)
	require.Equal(t, "20.00", out.OwnerShare)
	require.Equal(t, "180.00", out.WinnerShare)

	require.Equal(t, 580.0, f.balance(1))
	require.Equal(t, 400.0, f.balance(2))
	require.Equal(t, 20.0, f.balance(9))
	// 资金守恒：余额总和结算前后一致
	require.Equal(t, 1000.0, f.balance(1)+f.balance(2)+f.balance(9))

	g, err := f.GetGame(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 3, g.Status)
	require.True(t, g.WinnerID.Valid)
	require.EqualValues(t, 1, g.WinnerID.Int64)
	require.Equal(t, out.SettleNo, g.SettleNo)

	// 账本四笔：双方入场费 + 胜者派彩 + 平台抽成，before/after 链式衔接
	require.Len(t, f.ledgers, 4)
	require.Equal(t, "stake", f.ledgers[0].BizTypeStr)
	require.Equal(t, 500.0, f.ledgers[0].BeforeAmount)
	require.Equal(t, 400.0, f.ledgers[0].AfterAmount)
	require.Equal(t, "payout", f.ledgers[2].BizTypeStr)
	require.Equal(t, 400.0, f.ledgers[2].BeforeAmount)
	require.Equal(t, 580.0, f.ledgers[2].AfterAmount)
	require.Equal(t, "owner_cut", f.ledgers[3].BizTypeStr)
	require.EqualValues(t, 9, f.ledgers[3].UserID)

	// Outbox 与审计同事务落库
	require.Len(t, f.outbox, 1)
	require.Equal(t, model.TopicGameSettled, f.outbox[0].Topic)
	require.Len(t, f.audits, 1)
}

// 单号格式：WG + 14位时间 + 4位对局尾号 + 3位大写十六进制
func TestSettleNoFormat(t *testing.T) {
	re := regexp.MustCompile(`^WG\d{14}\d{4}[0-9A-F]{3}$`)
	for _, id := range []int64{1, 42, 9999, 123456} {
		no := generateSettleNo(id)
		require.Regexp(t, re, no)
	}
	// 对局ID取后4位
	require.Equal(t, "3456", generateSettleNo(123456)[16:20])
}

// 抽成为 0 时无需配置平台账户，胜者独得奖池
func TestSettleGameZeroCut(t *testing.T) {
	setEscrowConfig(0, true)
	f := newFakeStore()
	f.addUser(1, 100)
	f.addUser(2, 100)
	f.addGame(activeGame(1, 1, 2, 50, 0))

	svc := NewSettlementService(f)
	out, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 2, TraceID: "t-zero"})
	require.NoError(t, err)
	require.Equal(t, "100.00", out.TotalPool)
	require.Equal(t, "0.00", out.OwnerShare)
	require.Equal(t, "100.00", out.WinnerShare)

	require.Equal(t, 50.0, f.balance(1))
	require.Equal(t, 150.0, f.balance(2))
	// 无抽成时不产生 owner_cut 账本
	require.Len(t, f.ledgers, 3)
}

// 银行家舍入：半数位向偶数舍入，winner_share = pool - owner_share 恒成立
func TestSettleGameBankersRounding(t *testing.T) {
	cases := []struct {
		fee, cut           float64
		pool, owner, winer string
	}{
		{0.05, 5, "0.10", "0.00", "0.10"},  // 0.005 -> 0.00
		{0.15, 5, "0.30", "0.02", "0.28"},  // 0.015 -> 0.02
		{0.25, 5, "0.50", "0.02", "0.48"},  // 0.025 -> 0.02
		{0.35, 5, "0.70", "0.04", "0.66"},  // 0.035 -> 0.04
		{33.33, 7, "66.66", "4.67", "61.99"},
	}
	for _, c := range cases {
		setEscrowConfig(9, true)
		f := newFakeStore()
		f.addUser(1, 1000)
		f.addUser(2, 1000)
		f.addUser(9, 0)
		f.addGame(activeGame(1, 1, 2, c.fee, c.cut))

		svc := NewSettlementService(f)
		out, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
		require.NoError(t, err, "fee=%v cut=%v", c.fee, c.cut)
		require.Equal(t, c.pool, out.TotalPool, "fee=%v cut=%v", c.fee, c.cut)
		require.Equal(t, c.owner, out.OwnerShare, "fee=%v cut=%v", c.fee, c.cut)
		require.Equal(t, c.winer, out.WinnerShare, "fee=%v cut=%v", c.fee, c.cut)
	}
}

// 有抽成但平台账户未配置时拒绝结算
func TestSettleGameOwnerNotConfigured(t *testing.T) {
	setEscrowConfig(0, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.ErrorIs(t, err, ErrOwnerNotConfigured)
	require.Equal(t, 500.0, f.balance(1))
	require.Equal(t, 500.0, f.balance(2))
}

// 胜者必须是对局参与者，校验失败不产生任何资金变动
func TestSettleGameWinnerNotInGame(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 777})
	require.ErrorIs(t, err, ErrWinnerNotInGame)
	require.Equal(t, 500.0, f.balance(1))
	require.Equal(t, 500.0, f.balance(2))
	require.Empty(t, f.ledgers)

	g, _ := f.GetGame(context.Background(), 1)
	require.EqualValues(t, 2, g.Status)
}

// 无幂等键的重复结算请求按状态冲突拒绝
func TestSettleGameRepeatWithoutKey(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.NoError(t, err)

	_, err = svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.ErrorIs(t, err, ErrAlreadySettled)
	// 余额保持第一次结算结果，不会二次扣费
	require.Equal(t, 580.0, f.balance(1))
	require.Equal(t, 400.0, f.balance(2))
	require.Equal(t, 20.0, f.balance(9))
	require.Len(t, f.ledgers, 4)
}

// 携带幂等键的重试返回第一次的结算结果
func TestSettleGameRepeatWithKey(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	in := SettleInput{GameID: 1, WinnerID: 1, IdempotencyKey: "req-abc", TraceID: "t-retry"}

	first, err := svc.SettleGame(context.Background(), in)
	require.NoError(t, err)

	second, err := svc.SettleGame(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, first.SettleNo, second.SettleNo)
	require.Equal(t, first.TotalPool, second.TotalPool)
	require.Equal(t, first.WinnerShare, second.WinnerShare)

	// 资金只划转一次
	require.Equal(t, 580.0, f.balance(1))
	require.Len(t, f.ledgers, 4)
}

// 幂等键已被占用但结算尚未完成：提示调用方稍后重试
func TestSettleGameKeyHeldByInFlightRequest(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))
	f.idemKeys["req-busy"] = "WG00000000000000000000"

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1, IdempotencyKey: "req-busy"})
	require.ErrorIs(t, err, ErrDuplicateInFlight)
	require.Equal(t, 500.0, f.balance(1))
}

// 中途落库失败时整体回滚：余额、状态、结算日志均不变
func TestSettleGameRollbackOnLedgerFailure(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))
	f.failOn["InsertLedger"] = errors.New("ledger insert failed")

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.Error(t, err)

	require.Equal(t, 500.0, f.balance(1))
	require.Equal(t, 500.0, f.balance(2))
	require.Equal(t, 0.0, f.balance(9))
	require.Empty(t, f.ledgers)
	_, err = f.GetSettlementLog(context.Background(), 1)
	require.Error(t, err)

	g, _ := f.GetGame(context.Background(), 1)
	require.EqualValues(t, 2, g.Status)
}

// 关闭透支开关后，入场费扣款导致余额为负时拒绝结算
func TestSettleGameOverdraftDisabled(t *testing.T) {
	setEscrowConfig(9, false)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 50)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	svc := NewSettlementService(f)
	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.ErrorIs(t, err, ErrInsufficientStake)
	require.Equal(t, 500.0, f.balance(1))
	require.Equal(t, 50.0, f.balance(2))
}

func TestSettleGameStateAndParamGuards(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	// waiting 状态（无玩家2）不允许结算
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})

	svc := NewSettlementService(f)

	_, err := svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.SettleGame(context.Background(), SettleInput{GameID: 404, WinnerID: 1})
	require.ErrorIs(t, err, ErrGameNotFound)

	_, err = svc.SettleGame(context.Background(), SettleInput{GameID: 0, WinnerID: 1})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: -1})
	require.ErrorIs(t, err, ErrBadRequest)
}
