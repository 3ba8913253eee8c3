package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	chelper "wager-server/common/helper"
	"wager-server/common/logger"
	"wager-server/internal/config"
	infrds "wager-server/internal/infra/redis"
	"wager-server/internal/metrics"
	"wager-server/internal/model"
	"wager-server/internal/state"
	"wager-server/internal/store"

	"github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 结算业务逻辑
const (
	BIZ_TYPE_STAKE     = 1
	BIZ_TYPE_PAYOUT    = 2
	BIZ_TYPE_OWNER_CUT = 3
)

const (
	// Redis 进行中锁 TTL：吸收瞬时重复的结算请求
	idemLockTTL = 45 * time.Second
	// 结果缓存 TTL：用于重复请求直接返回第一次成功结果
	idemResultTTL = 1 * time.Minute
	// 结算结果缓存 TTL
	settleResultTTL = 2 * time.Minute
)

var (
	ErrDuplicateInFlight  = errors.New("duplicate request in flight")
	ErrAlreadySettled     = errors.New("game already settled")
	ErrWinnerNotInGame    = errors.New("winner is not a participant of the game")
	ErrOwnerNotConfigured = errors.New("owner account not configured")
)

// SettleInput 输入参数
type SettleInput struct {
	GameID         int64
	WinnerID       int64
	IdempotencyKey string // 可选；为空时不走幂等键路径，仅由 settlement_log 唯一键兜底
	Operator       string
	TraceID        string
}

// SettleOutput 结算结果；金额统一以两位小数字符串返回
type SettleOutput struct {
	SettleNo    string `json:"settle_no"`
	GameID      int64  `json:"game_id"`
	WinnerID    int64  `json:"winner_id"`
	TotalPool   string `json:"total_pool"`
	OwnerShare  string `json:"owner_share"`
	WinnerShare string `json:"winner_share"`
}

type SettlementService interface {
	SettleGame(ctx context.Context, in SettleInput) (*SettleOutput, error)
}

type settlementService struct {
	st store.Store
}

func NewSettlementService(st store.Store) SettlementService { return &settlementService{st: st} }

// SettleGame 结算主流程：
// 单事务内完成 对局锁定 -> 胜者校验 -> 分账计算 -> 结算日志 -> 双方扣入场费 ->
// 胜者派彩 -> 平台抽成 -> 账本落库 -> 状态推进 -> 审计/Outbox，任一步失败整体回滚。
// 一次结算内所有余额变动之和严格为零。
func (s *settlementService) SettleGame(ctx context.Context, in SettleInput) (*SettleOutput, error) {
	start := time.Now()
	resultLabel := "fail"
	defer func() { metrics.RecordSettle(resultLabel, start) }()

	if in.GameID <= 0 || in.WinnerID <= 0 {
		fmt.Printf("[Settle]  参数校验失败: game_id=%d, winner_id=%d, trace_id=%s\n",
			in.GameID, in.WinnerID, in.TraceID)
		return nil, fmt.Errorf("%w: invalid game or winner id", ErrBadRequest)
	}
	if in.Operator == "" {
		in.Operator = "system"
	}

	fmt.Printf("[Settle]  收到结算请求: game_id=%d, winner_id=%d, idem_key=%s, operator=%s, trace_id=%s\n",
		in.GameID, in.WinnerID, in.IdempotencyKey, in.Operator, in.TraceID)

	// Redis 快路径：若已有结果缓存，直接返回
	if r := infrds.Client(); r != nil && in.IdempotencyKey != "" {
		if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out SettleOutput
			if json.Unmarshal(bs, &out) == nil {
				fmt.Printf("[Settle]  Redis 缓存命中: idem_key=%s, settle_no=%s, trace_id=%s\n",
					in.IdempotencyKey, out.SettleNo, in.TraceID)
				resultLabel = "success_idempotent"
				return &out, nil
			}
		}

		// 生成唯一锁值，防止误删其他请求的锁
		lockValue := uuid.New().String()
		lockKey := infrds.IdemLockKey(in.IdempotencyKey)

		// 进行中锁，吸收瞬时重复
		ok, _ := r.SetNX(ctx, lockKey, lockValue, idemLockTTL).Result()
		if !ok {
			if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
				var out SettleOutput
				if json.Unmarshal(bs, &out) == nil {
					resultLabel = "success_idempotent"
					return &out, nil
				}
			}
			fmt.Printf("[Settle]  重复请求进行中: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			return nil, ErrDuplicateInFlight
		}

		// 使用 Lua 脚本原子释放锁（仅当锁值匹配时删除）
		defer func() {
			script := `
				if redis.call("get", KEYS[1]) == ARGV[1] then
					return redis.call("del", KEYS[1])
				else
					return 0
				end
			`
			if _, err := r.Eval(ctx, script, []string{lockKey}, lockValue).Result(); err != nil {
				fmt.Printf("[Settle] 释放分布式锁失败: idem_key=%s, error=%v, trace_id=%s\n",
					in.IdempotencyKey, err, in.TraceID)
			}
		}()
	}

	// 开启事务（带默认超时，防止长事务影响并发）。
	// 若上游 ctx 已设置 deadline，则沿用；否则使用默认 defaultTxTimeout。
	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.st.Begin(txCtx)
	if err != nil {
		fmt.Printf("[Settle] 开启事务失败: error=%v, game_id=%d, trace_id=%s\n",
			err, in.GameID, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// ========== 幂等性保护 #1: 锁定对局并检查状态 ==========
	g, err := tx.GetGameForUpdate(txCtx, in.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	currentState := codeToState(g.Status)
	fmt.Printf("[Settle]  当前状态: state=%s(%d), game_id=%d, trace_id=%s\n",
		currentState, g.Status, in.GameID, in.TraceID)

	if currentState == state.StateSettled {
		// 携带幂等键的重复请求返回上次结果，否则按状态冲突处理
		if in.IdempotencyKey != "" {
			if out := s.loadSettledResult(ctx, g); out != nil {
				resultLabel = "success_idempotent"
				return out, nil
			}
		}
		return nil, ErrAlreadySettled
	}
	if _, err := state.NextState(currentState, state.EvtSettle); err != nil {
		fmt.Printf("[Settle]  状态不允许结算: game_id=%d, state=%s, trace_id=%s\n",
			in.GameID, currentState, in.TraceID)
		return nil, ErrInvalidState
	}

	// 胜者必须是对局参与者
	if !g.Player2ID.Valid {
		return nil, ErrInvalidState
	}
	player2ID := g.Player2ID.Int64
	if in.WinnerID != g.Player1ID && in.WinnerID != player2ID {
		fmt.Printf("[Settle]  胜者不是对局参与者: game_id=%d, winner_id=%d, player1_id=%d, player2_id=%d, trace_id=%s\n",
			in.GameID, in.WinnerID, g.Player1ID, player2ID, in.TraceID)
		return nil, ErrWinnerNotInGame
	}

	// ========== 分账计算 ==========
	// pool = entry_fee × 2
	// owner_share = round-half-even(pool × owner_cut / 100)，两位小数（银行家舍入，全局唯一舍入规则）
	// winner_share = pool − owner_share，保证 owner_share + winner_share == pool 恒成立
	feeDec := decimal.NewFromFloat(g.EntryFee).Round(2)
	poolDec := feeDec.Mul(decimal.NewFromInt(2))
	cutDec := decimal.NewFromFloat(g.OwnerCut)
	ownerShareDec := poolDec.Mul(cutDec).Div(decimal.NewFromInt(100)).RoundBank(2)
	winnerShareDec := poolDec.Sub(ownerShareDec)

	ownerID := int64(0)
	if cfg := config.Get(); cfg != nil {
		ownerID = cfg.Escrow.OwnerUserID
	}
	if ownerShareDec.IsPositive() && ownerID <= 0 {
		fmt.Printf("[Settle]  平台账户未配置: game_id=%d, owner_share=%s, trace_id=%s\n",
			in.GameID, ownerShareDec.String(), in.TraceID)
		return nil, ErrOwnerNotConfigured
	}

	settleNo := generateSettleNo(g.ID)

	// 幂等：携带幂等键时先占键，ref 记录 settle_no
	if in.IdempotencyKey != "" {
		if err := tx.InsertIdempotencyKey(txCtx, in.IdempotencyKey, "settle", settleNo); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				fmt.Printf("[Settle]  幂等键冲突，尝试返回上次结果: idem_key=%s, trace_id=%s\n",
					in.IdempotencyKey, in.TraceID)
				_ = tx.Rollback()
				if out := s.loadSettledResult(ctx, g); out != nil {
					resultLabel = "success_idempotent"
					return out, nil
				}
				return nil, ErrDuplicateInFlight
			}
			return nil, err
		}
	}

	// ========== 幂等性保护 #2: 创建结算日志 ==========
	// game_id 唯一索引防止重复结算（双重保护）
	settlementLog := &model.SettlementLog{
		GameID:      g.ID,
		SettleNo:    settleNo,
		WinnerID:    in.WinnerID,
		TotalPool:   poolDec.InexactFloat64(),
		OwnerShare:  ownerShareDec.InexactFloat64(),
		WinnerShare: winnerShareDec.InexactFloat64(),
		Operator:    in.Operator,
		TraceID:     in.TraceID,
	}
	if err := tx.CreateSettlementLog(txCtx, settlementLog); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			fmt.Printf("[Settle] 结算日志已存在，跳过重复结算: game_id=%d, trace_id=%s\n",
				in.GameID, in.TraceID)
			return nil, ErrAlreadySettled
		}
		fmt.Printf("[Settle] 创建结算日志失败: game_id=%d, error=%v, trace_id=%s\n",
			in.GameID, err, in.TraceID)
		return nil, err
	}

	// ========== 资金划转 ==========
	// 按 user_id 升序依次加锁（避免并发结算死锁），再按固定顺序应用资金变动：
	// 1. 双方各扣入场费 2. 胜者派彩 3. 平台抽成
	type movement struct {
		userID  int64
		bizType int
		bizStr  string
		amount  decimal.Decimal // 正数为入账，负数为扣款
		remark  string
	}
	movements := []movement{
		{g.Player1ID, BIZ_TYPE_STAKE, "stake", feeDec.Neg(), "entry fee escrow"},
		{player2ID, BIZ_TYPE_STAKE, "stake", feeDec.Neg(), "entry fee escrow"},
		{in.WinnerID, BIZ_TYPE_PAYOUT, "payout", winnerShareDec, "winner payout"},
	}
	if ownerShareDec.IsPositive() {
		movements = append(movements, movement{ownerID, BIZ_TYPE_OWNER_CUT, "owner_cut", ownerShareDec, "platform owner cut"})
	}

	// 收集涉及的用户并升序加锁
	idSet := map[int64]bool{}
	for _, m := range movements {
		idSet[m.userID] = true
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	balances := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		u, err := tx.GetUserForUpdate(txCtx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("[Settle]  结算涉及的用户不存在: user_id=%d, game_id=%d, trace_id=%s\n",
					id, in.GameID, in.TraceID)
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		balances[id] = decimal.NewFromFloat(u.Balance)
	}

	allowOverdraft := true
	if cfg := config.Get(); cfg != nil {
		allowOverdraft = cfg.Escrow.AllowOverdraft
	}

	currency := "CNY"
	if cfg := config.Get(); cfg != nil && cfg.Escrow.Currency != "" {
		currency = cfg.Escrow.Currency
	}

	// 按固定顺序逐笔记账（before/after 链式衔接），账本与余额同事务落库
	for _, m := range movements {
		if m.amount.IsZero() {
			continue
		}
		before := balances[m.userID]
		after := before.Add(m.amount).Round(2)

		// 扣入场费允许透支由配置决定（关闭时余额不足则整体回滚）
		if !allowOverdraft && m.bizType == BIZ_TYPE_STAKE && after.IsNegative() {
			fmt.Printf("[Settle]  余额不足且不允许透支: user_id=%d, before=%s, fee=%s, game_id=%d, trace_id=%s\n",
				m.userID, before.String(), feeDec.String(), in.GameID, in.TraceID)
			return nil, ErrInsufficientStake
		}

		ledger := &model.WalletLedger{
			UserID:       m.userID,
			BizType:      m.bizType,
			BizTypeStr:   m.bizStr,
			Amount:       m.amount.Abs().InexactFloat64(),
			BeforeAmount: before.InexactFloat64(),
			AfterAmount:  after.InexactFloat64(),
			Currency:     currency,
			SettleNo:     settleNo,
			GameID:       g.ID,
			Remark:       m.remark,
			TraceID:      in.TraceID,
		}
		if err := tx.InsertLedger(txCtx, ledger); err != nil {
			fmt.Printf("[Settle]  写入账本失败: user_id=%d, error=%v, trace_id=%s\n",
				m.userID, err, in.TraceID)
			return nil, err
		}
		balances[m.userID] = after
	}

	// 每个用户只回写一次最终余额
	for _, id := range ids {
		if err := tx.UpdateUserBalance(txCtx, id, balances[id].InexactFloat64()); err != nil {
			fmt.Printf("[Settle]  更新余额失败: user_id=%d, error=%v, trace_id=%s\n",
				id, err, in.TraceID)
			return nil, err
		}
	}

	// ========== 幂等性保护 #3: 状态推进 active -> settled ==========
	ok, err := tx.MarkGameSettled(txCtx, g.ID, in.WinnerID, settleNo)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 行锁下理论上不会走到这里
		return nil, ErrAlreadySettled
	}

	// 审计事件 - game_settle
	aud := &model.GameAudit{
		GameID:    g.ID,
		EventType: 4,
		PrevState: state.StateActive,
		NextState: state.StateSettled,
		Operator:  in.Operator,
		Source:    "api",
		Payload: toJSON(map[string]any{
			"winner_id":    in.WinnerID,
			"settle_no":    settleNo,
			"total_pool":   poolDec.String(),
			"owner_share":  ownerShareDec.String(),
			"winner_share": winnerShareDec.String(),
		}),
		TraceID: in.TraceID,
	}
	if err := tx.InsertAudit(txCtx, aud); err != nil {
		return nil, err
	}

	// Outbox 消息（事务内写入，确保与数据库状态一致）
	if err := tx.CreateOutbox(txCtx, model.TopicGameSettled, settleNo, map[string]any{
		"event":        "game_settled",
		"game_id":      g.ID,
		"winner_id":    in.WinnerID,
		"settle_no":    settleNo,
		"total_pool":   poolDec.String(),
		"owner_share":  ownerShareDec.String(),
		"winner_share": winnerShareDec.String(),
		"trace_id":     in.TraceID,
	}); err != nil {
		fmt.Printf("[Settle]  写入 Outbox 失败: game_id=%d, error=%v, trace_id=%s\n",
			g.ID, err, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Settle]  提交事务失败: game_id=%d, error=%v, trace_id=%s\n",
			g.ID, err, in.TraceID)
		return nil, err
	}

	resultLabel = "success"
	metrics.ObservePool(poolDec.InexactFloat64())

	out := &SettleOutput{
		SettleNo:    settleNo,
		GameID:      g.ID,
		WinnerID:    in.WinnerID,
		TotalPool:   poolDec.StringFixed(2),
		OwnerShare:  chelper.BankFixed(ownerShareDec),
		WinnerShare: chelper.BankFixed(winnerShareDec),
	}

	// 写入 Redis 结果缓存与快照更新（降级容错）
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			if in.IdempotencyKey != "" {
				_ = r.Set(ctx, infrds.IdemResultKey(in.IdempotencyKey), b, idemResultTTL).Err()
			}
			_ = r.Set(ctx, infrds.SettleResultKey(g.ID), b, settleResultTTL).Err()
		}
		_ = r.Del(ctx, infrds.GameSnapshotKey(g.ID)).Err()
	}

	fmt.Printf("[Settle] 结算完成: game_id=%d, settle_no=%s, winner_id=%d, pool=%s, owner_share=%s, winner_share=%s, trace_id=%s\n",
		g.ID, settleNo, in.WinnerID, poolDec.String(), ownerShareDec.String(), winnerShareDec.String(), in.TraceID)
	logCtx := logger.WithSettleNo(logger.WithTraceID(ctx, in.TraceID), settleNo)
	logger.InfoCtx(logCtx, "settlement committed",
		zap.Int64("game_id", g.ID),
		zap.Int64("winner_id", in.WinnerID),
		zap.String("total_pool", poolDec.StringFixed(2)))
	return out, nil
}

// loadSettledResult 从 Redis/结算日志回源已完成的结算结果
func (s *settlementService) loadSettledResult(ctx context.Context, g *model.Game) *SettleOutput {
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.SettleResultKey(g.ID)).Bytes(); len(bs) > 0 {
			var out SettleOutput
			if json.Unmarshal(bs, &out) == nil {
				return &out
			}
		}
	}
	log, err := s.st.GetSettlementLog(ctx, g.ID)
	if err != nil {
		return nil
	}
	return &SettleOutput{
		SettleNo:    log.SettleNo,
		GameID:      log.GameID,
		WinnerID:    log.WinnerID,
		TotalPool:   decimal.NewFromFloat(log.TotalPool).StringFixed(2),
		OwnerShare:  decimal.NewFromFloat(log.OwnerShare).StringFixed(2),
		WinnerShare: decimal.NewFromFloat(log.WinnerShare).StringFixed(2),
	}
}

// generateSettleNo 生成可读的结算单号
// 格式：WG{YYYYMMDD}{HHmmss}{GameID后4位}{随机3位十六进制}
// 时间 + 对局 + 随机数保证唯一性，可从单号看出结算时间和对局
func generateSettleNo(gameID int64) string {
	now := time.Now()
	dateTime := now.Format("20060102150405")
	gameSuffix := fmt.Sprintf("%04d", gameID%10000)
	randomBytes := make([]byte, 2)
	rand.Read(randomBytes)
	randomHex := strings.ToUpper(hex.EncodeToString(randomBytes)[:3])

	return fmt.Sprintf("WG%s%s%s", dateTime, gameSuffix, randomHex)
}
