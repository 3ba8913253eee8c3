package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"wager-server/internal/config"
	"wager-server/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCreateGameOK(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)

	svc := NewGameService(f)
	g, err := svc.CreateGame(context.Background(), CreateGameInput{
		Player1ID: 1, EntryFee: "100", OwnerCut: "10", TraceID: "t-create",
	})
	require.NoError(t, err)
	require.NotZero(t, g.ID)
	require.EqualValues(t, 1, g.Status)
	require.Equal(t, 100.0, g.EntryFee)
	require.Equal(t, 10.0, g.OwnerCut)
	require.False(t, g.Player2ID.Valid)

	// 创建对局不冻结任何资金，扣款统一在结算时发生
	require.Equal(t, 500.0, f.balance(1))
	require.Empty(t, f.ledgers)

	require.Len(t, f.audits, 1)
	require.Len(t, f.outbox, 1)
	require.Equal(t, model.TopicGameCreated, f.outbox[0].Topic)
}

func TestCreateGameValidation(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	svc := NewGameService(f)

	cases := []struct {
		name     string
		fee, cut string
		playerID int64
	}{
		{"fee not a number", "abc", "10", 1},
		{"negative fee", "-1", "10", 1},
		{"cut not a number", "100", "x", 1},
		{"negative cut", "100", "-5", 1},
		{"cut over 100", "100", "100.01", 1},
		{"invalid player", "100", "10", 0},
	}
	for _, c := range cases {
		_, err := svc.CreateGame(context.Background(), CreateGameInput{
			Player1ID: c.playerID, EntryFee: c.fee, OwnerCut: c.cut,
		})
		require.ErrorIs(t, err, ErrBadRequest, c.name)
	}

	// 创建者不存在
	_, err := svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 404, EntryFee: "100", OwnerCut: "10"})
	require.ErrorIs(t, err, ErrUserNotFound)

	// 边界值合法：零费用、零抽成、满抽成
	_, err = svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "0", OwnerCut: "0"})
	require.NoError(t, err)
	_, err = svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "1", OwnerCut: "100"})
	require.NoError(t, err)
}

// 入场费上限：动态阈值（分）优先于静态配置
func TestCreateGameMaxEntryFee(t *testing.T) {
	cfg := &config.Config{}
	cfg.Escrow.OwnerUserID = 9
	cfg.Escrow.AllowOverdraft = true
	cfg.Escrow.MaxEntryFee = 500
	config.Set(cfg)
	config.SetCurrent(cfg)

	f := newFakeStore()
	f.addUser(1, 500)
	svc := NewGameService(f)

	_, err := svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "500.01", OwnerCut: "10"})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "500", OwnerCut: "10"})
	require.NoError(t, err)

	// 阈值 max_entry_fee_cents=20000（即 200 元）覆盖静态上限
	cfg2 := &config.Config{}
	cfg2.Escrow = cfg.Escrow
	cfg2.Thresholds = map[string]int64{"max_entry_fee_cents": 20000}
	config.Set(cfg2)
	config.SetCurrent(cfg2)

	_, err = svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "200.01", OwnerCut: "10"})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = svc.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "200", OwnerCut: "10"})
	require.NoError(t, err)
}

func TestJoinGameOK(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})

	svc := NewGameService(f)
	g, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 2, TraceID: "t-join"})
	require.NoError(t, err)
	require.EqualValues(t, 2, g.Status)
	require.True(t, g.Player2ID.Valid)
	require.EqualValues(t, 2, g.Player2ID.Int64)

	stored, _ := f.GetGame(context.Background(), 1)
	require.EqualValues(t, 2, stored.Status)
	require.Len(t, f.outbox, 1)
	require.Equal(t, model.TopicGameJoined, f.outbox[0].Topic)
}

func TestJoinGameGuards(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(3, 500)
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})

	svc := NewGameService(f)

	// 不能加入自己创建的对局
	_, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 1})
	require.ErrorIs(t, err, ErrSelfJoin)

	// 对局不存在
	_, err = svc.JoinGame(context.Background(), JoinGameInput{GameID: 404, Player2ID: 2})
	require.ErrorIs(t, err, ErrGameNotFound)

	// 玩家不存在
	_, err = svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 404})
	require.ErrorIs(t, err, ErrUserNotFound)

	// 第一个加入成功，第二个命中满员
	_, err = svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 2})
	require.NoError(t, err)
	_, err = svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 3})
	require.ErrorIs(t, err, ErrAlreadyJoined)
}

// 并发加入同一个 waiting 对局：只有一个命中条件更新，另一个命中满员
func TestJoinGameConcurrentRace(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(3, 500)
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})

	svc := NewGameService(f)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, pid := range []int64{2, 3} {
		wg.Add(1)
		go func(pid int64) {
			defer wg.Done()
			_, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: pid})
			errs <- err
		}(pid)
	}
	wg.Wait()
	close(errs)

	var okCount, conflictCount int
	for err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, ErrAlreadyJoined):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, okCount)
	require.Equal(t, 1, conflictCount)

	// 终态只有一个玩家2，且对局激活
	g, err := f.GetGame(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, g.Status)
	require.True(t, g.Player2ID.Valid)
	require.Contains(t, []int64{2, 3}, g.Player2ID.Int64)
}

// 创建者加入自己已结束的对局按状态冲突处理，而不是自加入错误
func TestJoinOwnFinishedGameIsStateConflict(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	g := activeGame(1, 1, 2, 100, 10)
	g.Status = 3
	f.addGame(g)

	svc := NewGameService(f)
	_, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 1})
	require.ErrorIs(t, err, ErrAlreadyJoined)
	require.NotErrorIs(t, err, ErrSelfJoin)
}

// 关闭透支开关后，余额不足入场费的玩家不允许加入
func TestJoinGameInsufficientBalance(t *testing.T) {
	setEscrowConfig(9, false)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 99.99)
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})

	svc := NewGameService(f)
	_, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: 1, Player2ID: 2})
	require.ErrorIs(t, err, ErrInsufficientStake)
}

func TestStartGameTransitions(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})
	f.addGame(activeGame(2, 1, 2, 100, 10))

	svc := NewGameService(f)

	g, err := svc.StartGame(context.Background(), 1, "t-start")
	require.NoError(t, err)
	require.EqualValues(t, 2, g.Status)

	// active 状态不允许重复开始
	_, err = svc.StartGame(context.Background(), 2, "t-start")
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.StartGame(context.Background(), 404, "t-start")
	require.ErrorIs(t, err, ErrGameNotFound)
}

// 完整生命周期：创建 -> 加入 -> 结算，全程资金守恒
func TestGameLifecycleConservation(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)

	games := NewGameService(f)
	settle := NewSettlementService(f)

	g, err := games.CreateGame(context.Background(), CreateGameInput{Player1ID: 1, EntryFee: "100", OwnerCut: "10"})
	require.NoError(t, err)

	_, err = games.JoinGame(context.Background(), JoinGameInput{GameID: g.ID, Player2ID: 2})
	require.NoError(t, err)

	out, err := settle.SettleGame(context.Background(), SettleInput{GameID: g.ID, WinnerID: 2})
	require.NoError(t, err)
	require.Equal(t, "180.00", out.WinnerShare)

	require.Equal(t, 400.0, f.balance(1))
	require.Equal(t, 580.0, f.balance(2))
	require.Equal(t, 20.0, f.balance(9))
	require.Equal(t, 1000.0, f.balance(1)+f.balance(2)+f.balance(9))

	// 三个事件各产生一条审计与一条事务消息
	require.Len(t, f.audits, 3)
	require.Len(t, f.outbox, 3)
}

func TestGetGameAndListOpen(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addGame(&model.Game{ID: 1, Player1ID: 1, EntryFee: 100, OwnerCut: 10, Status: 1})
	f.addGame(activeGame(2, 1, 2, 100, 10))

	svc := NewGameService(f)

	g, err := svc.GetGame(context.Background(), 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, g.ID)

	_, err = svc.GetGame(context.Background(), 404)
	require.ErrorIs(t, err, ErrGameNotFound)

	list, err := svc.ListOpenGames(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.EqualValues(t, 1, list[0].ID)
}

// 对账查询：结算后按对局拉取全部账本记录
func TestGetGameLedger(t *testing.T) {
	setEscrowConfig(9, true)
	f := newFakeStore()
	f.addUser(1, 500)
	f.addUser(2, 500)
	f.addUser(9, 0)
	f.addGame(activeGame(1, 1, 2, 100, 10))

	settle := NewSettlementService(f)
	_, err := settle.SettleGame(context.Background(), SettleInput{GameID: 1, WinnerID: 1})
	require.NoError(t, err)

	svc := NewGameService(f)
	list, err := svc.GetGameLedger(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 4)

	types := map[string]int{}
	for _, l := range list {
		require.EqualValues(t, 1, l.GameID)
		types[l.BizTypeStr]++
	}
	require.Equal(t, 2, types["stake"])
	require.Equal(t, 1, types["payout"])
	require.Equal(t, 1, types["owner_cut"])

	_, err = svc.GetGameLedger(context.Background(), 404)
	require.ErrorIs(t, err, ErrGameNotFound)

	_, err = svc.GetGameLedger(context.Background(), 0)
	require.ErrorIs(t, err, ErrBadRequest)
}

// 快照编解码：缓存存原始行，读路径无损还原；坏数据回源
func TestGameSnapshotCodec(t *testing.T) {
	g := activeGame(7, 1, 2, 100.5, 10)
	g.SettleNo = "WG2026010100000000077AB"

	b, err := json.Marshal(g)
	require.NoError(t, err)

	got := decodeGameSnapshot(b)
	require.NotNil(t, got)
	require.Equal(t, g.ID, got.ID)
	require.Equal(t, g.Player1ID, got.Player1ID)
	require.Equal(t, g.Player2ID, got.Player2ID)
	require.Equal(t, g.EntryFee, got.EntryFee)
	require.Equal(t, g.Status, got.Status)
	require.Equal(t, g.SettleNo, got.SettleNo)

	require.Nil(t, decodeGameSnapshot([]byte("{broken")))
	require.Nil(t, decodeGameSnapshot([]byte(`{"Player1ID":1}`)))
}

func TestGameViewSnapshot(t *testing.T) {
	g := activeGame(7, 1, 2, 100.5, 10)
	g.SettleNo = "WG2026010100000000077AB"
	snap := GameView(g)
	require.EqualValues(t, 7, snap.GameID)
	require.Equal(t, "100.50", snap.EntryFee)
	require.Equal(t, "active", snap.Status)
	require.NotNil(t, snap.Player2ID)
	require.EqualValues(t, 2, *snap.Player2ID)
	require.Nil(t, snap.WinnerID)
}
