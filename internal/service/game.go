package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	chelper "wager-server/common/helper"
	"wager-server/internal/config"
	infrds "wager-server/internal/infra/redis"
	"wager-server/internal/metrics"
	"wager-server/internal/model"
	"wager-server/internal/state"
	"wager-server/internal/store"

	decimal "github.com/shopspring/decimal"
)

// 对局生命周期业务逻辑

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

// 对局快照缓存 TTL
const gameSnapshotTTL = 2 * time.Minute

var (
	ErrBadRequest        = errors.New("bad request")
	ErrGameNotFound      = errors.New("game not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrSelfJoin          = errors.New("cannot join own game")
	ErrAlreadyJoined     = errors.New("game already has two players")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrInsufficientStake = errors.New("insufficient balance for entry fee")
)

// CreateGameInput 输入参数
type CreateGameInput struct {
	Player1ID int64
	EntryFee  string // 入场费（字符串金额，decimal 解析）
	OwnerCut  string // 平台抽成百分比 [0,100]
	TraceID   string
}

type JoinGameInput struct {
	GameID    int64
	Player2ID int64
	TraceID   string
}

type GameService interface {
	CreateGame(ctx context.Context, in CreateGameInput) (*model.Game, error)
	JoinGame(ctx context.Context, in JoinGameInput) (*model.Game, error)
	StartGame(ctx context.Context, gameID int64, traceID string) (*model.Game, error)
	GetGame(ctx context.Context, gameID int64) (*model.Game, error)
	ListOpenGames(ctx context.Context, limit uint) ([]model.Game, error)
	GetGameLedger(ctx context.Context, gameID int64) ([]model.WalletLedger, error)
}

type gameService struct {
	st store.Store
}

func NewGameService(st store.Store) GameService { return &gameService{st: st} }

// CreateGame 创建对局：校验入场费与抽成比例，落库 waiting 状态，写审计与 Outbox
func (s *gameService) CreateGame(ctx context.Context, in CreateGameInput) (*model.Game, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "create", start) }()

	// ========== 参数解析和验证 ==========
	// 1. 入场费 ≥ 0，且不超过配置上限
	// 2. 抽成百分比 ∈ [0,100]
	// ====================================
	feeDec, err := decimal.NewFromString(strings.TrimSpace(in.EntryFee))
	if err != nil {
		fmt.Printf("[Game]  无效的入场费格式: entry_fee=%s, error=%v, trace_id=%s\n",
			in.EntryFee, err, in.TraceID)
		return nil, fmt.Errorf("%w: invalid entry fee format", ErrBadRequest)
	}
	if feeDec.IsNegative() {
		fmt.Printf("[Game]  入场费不能为负: entry_fee=%s, trace_id=%s\n", in.EntryFee, in.TraceID)
		return nil, fmt.Errorf("%w: entry fee must be non-negative", ErrBadRequest)
	}
	if maxFee := config.GetMaxEntryFee(); maxFee > 0 {
		if feeDec.GreaterThan(decimal.NewFromFloat(maxFee)) {
			fmt.Printf("[Game]  入场费超过上限: entry_fee=%s, max=%.2f, trace_id=%s\n",
				in.EntryFee, maxFee, in.TraceID)
			return nil, fmt.Errorf("%w: entry fee exceeds maximum limit", ErrBadRequest)
		}
	}

	cutDec, err := decimal.NewFromString(strings.TrimSpace(in.OwnerCut))
	if err != nil {
		fmt.Printf("[Game]  无效的抽成比例格式: owner_cut=%s, error=%v, trace_id=%s\n",
			in.OwnerCut, err, in.TraceID)
		return nil, fmt.Errorf("%w: invalid owner cut format", ErrBadRequest)
	}
	if cutDec.IsNegative() || cutDec.GreaterThan(decimal.NewFromInt(100)) {
		fmt.Printf("[Game]  抽成比例越界: owner_cut=%s, trace_id=%s\n", in.OwnerCut, in.TraceID)
		return nil, fmt.Errorf("%w: owner cut must be within [0,100]", ErrBadRequest)
	}

	if in.Player1ID <= 0 {
		return nil, fmt.Errorf("%w: invalid player1 id", ErrBadRequest)
	}

	fmt.Printf("[Game]  收到创建对局请求: player1_id=%d, entry_fee=%s, owner_cut=%s, trace_id=%s\n",
		in.Player1ID, feeDec.String(), cutDec.String(), in.TraceID)

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.st.Begin(txCtx)
	if err != nil {
		fmt.Printf("[Game] 开启事务失败: error=%v, trace_id=%s\n", err, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 校验创建者存在且状态正常
	p1, err := tx.GetUserForUpdate(txCtx, in.Player1ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if p1.Status != 1 {
		fmt.Printf("[Game]  用户状态异常: user_id=%d, status=%d, trace_id=%s\n",
			p1.ID, p1.Status, in.TraceID)
		return nil, fmt.Errorf("%w: user disabled", ErrBadRequest)
	}

	g := &model.Game{
		Player1ID: in.Player1ID,
		EntryFee:  feeDec.Round(2).InexactFloat64(),
		OwnerCut:  cutDec.InexactFloat64(),
		TraceID:   in.TraceID,
	}
	if err := tx.InsertGame(txCtx, g); err != nil {
		fmt.Printf("[Game]  创建对局失败: error=%v, player1_id=%d, trace_id=%s\n",
			err, in.Player1ID, in.TraceID)
		return nil, err
	}

	// 审计事件 - game_create
	aud := &model.GameAudit{
		GameID:    g.ID,
		EventType: 1,
		PrevState: "",
		NextState: state.StateWaiting,
		Operator:  fmt.Sprintf("user:%d", in.Player1ID),
		Source:    "api",
		Payload:   toJSON(map[string]any{"entry_fee": feeDec.String(), "owner_cut": cutDec.String()}),
		TraceID:   in.TraceID,
	}
	if err := tx.InsertAudit(txCtx, aud); err != nil {
		return nil, err
	}

	// Outbox 消息（异步）
	if err := tx.CreateOutbox(txCtx, model.TopicGameCreated, fmt.Sprintf("game:%d", g.ID), map[string]any{
		"event":      "game_created",
		"game_id":    g.ID,
		"player1_id": in.Player1ID,
		"entry_fee":  feeDec.String(),
		"owner_cut":  cutDec.String(),
		"trace_id":   in.TraceID,
	}); err != nil {
		fmt.Printf("[Game]  写入 Outbox 失败: error=%v, game_id=%d, trace_id=%s\n",
			err, g.ID, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Game]  提交事务失败: error=%v, game_id=%d, trace_id=%s\n",
			err, g.ID, in.TraceID)
		return nil, err
	}

	result = "success"
	s.cacheSnapshot(ctx, g)
	fmt.Printf("[Game] 对局创建完成: game_id=%d, player1_id=%d, status=waiting, trace_id=%s\n",
		g.ID, in.Player1ID, in.TraceID)
	return g, nil
}

// JoinGame 加入对局：条件更新保证并发下只有一个玩家2加入成功
func (s *gameService) JoinGame(ctx context.Context, in JoinGameInput) (*model.Game, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "join", start) }()

	if in.GameID <= 0 || in.Player2ID <= 0 {
		return nil, fmt.Errorf("%w: invalid game or player id", ErrBadRequest)
	}

	fmt.Printf("[Game]  收到加入对局请求: game_id=%d, player2_id=%d, trace_id=%s\n",
		in.GameID, in.Player2ID, in.TraceID)

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

	// 锁定对局行并校验状态
	g, err := tx.GetGameForUpdate(txCtx, in.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	// 先判状态再判自加入：非 waiting 的对局一律按状态冲突处理
	currentState := codeToState(g.Status)
	if currentState != state.StateWaiting {
		if g.Player2ID.Valid {
			fmt.Printf("[Game]  对局已满员: game_id=%d, status=%s, trace_id=%s\n",
				in.GameID, currentState, in.TraceID)
			return nil, ErrAlreadyJoined
		}
		return nil, ErrInvalidState
	}

	if g.Player1ID == in.Player2ID {
		fmt.Printf("[Game]  玩家不能加入自己创建的对局: game_id=%d, player_id=%d, trace_id=%s\n",
			in.GameID, in.Player2ID, in.TraceID)
		return nil, ErrSelfJoin
	}

	// 校验玩家2存在且状态正常
	p2, err := tx.GetUserForUpdate(txCtx, in.Player2ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if p2.Status != 1 {
		return nil, fmt.Errorf("%w: user disabled", ErrBadRequest)
	}

	// 入场资格校验（透支开关关闭时要求余额足够入场费）
	if cfg := config.Get(); cfg != nil && !cfg.Escrow.AllowOverdraft {
		if decimal.NewFromFloat(p2.Balance).LessThan(decimal.NewFromFloat(g.EntryFee)) {
			fmt.Printf("[Game]  玩家余额不足以入场: game_id=%d, player2_id=%d, balance=%.2f, entry_fee=%.2f, trace_id=%s\n",
				in.GameID, in.Player2ID, p2.Balance, g.EntryFee, in.TraceID)
			return nil, ErrInsufficientStake
		}
	}

	// 条件更新：WHERE status=waiting AND player2_id IS NULL，并发加入只有一个命中
	ok, err := tx.JoinGame(txCtx, in.GameID, in.Player2ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 行锁下理论上不会走到这里，兜底处理并发竞争
		fmt.Printf("[Game]  加入竞争失败: game_id=%d, player2_id=%d, trace_id=%s\n",
			in.GameID, in.Player2ID, in.TraceID)
		return nil, ErrAlreadyJoined
	}

	// 审计事件 - game_join
	aud := &model.GameAudit{
		GameID:    g.ID,
		EventType: 2,
		PrevState: state.StateWaiting,
		NextState: state.StateActive,
		Operator:  fmt.Sprintf("user:%d", in.Player2ID),
		Source:    "api",
		Payload:   toJSON(map[string]any{"player2_id": in.Player2ID}),
		TraceID:   in.TraceID,
	}
	if err := tx.InsertAudit(txCtx, aud); err != nil {
		return nil, err
	}

	if err := tx.CreateOutbox(txCtx, model.TopicGameJoined, fmt.Sprintf("game:%d", g.ID), map[string]any{
		"event":      "game_joined",
		"game_id":    g.ID,
		"player1_id": g.Player1ID,
		"player2_id": in.Player2ID,
		"trace_id":   in.TraceID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Game]  提交事务失败: error=%v, game_id=%d, trace_id=%s\n",
			err, in.GameID, in.TraceID)
		return nil, err
	}

	result = "success"
	g.Player2ID = sql.NullInt64{Int64: in.Player2ID, Valid: true}
	g.Status = 2
	s.cacheSnapshot(ctx, g)
	fmt.Printf("[Game] 加入对局完成: game_id=%d, player2_id=%d, status=active, trace_id=%s\n",
		g.ID, in.Player2ID, in.TraceID)
	return g, nil
}

// StartGame 受保护的 waiting -> active 推进
// 加入与激活解耦的部署使用；加入已激活的对局上调用返回状态冲突
func (s *gameService) StartGame(ctx context.Context, gameID int64, traceID string) (*model.Game, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "start", start) }()

	if gameID <= 0 {
		return nil, fmt.Errorf("%w: invalid game id", ErrBadRequest)
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

	g, err := tx.GetGameForUpdate(txCtx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	// 状态机校验：仅允许 waiting --start--> active
	next, err := state.NextState(codeToState(g.Status), state.EvtStart)
	if err != nil {
		fmt.Printf("[Game]  状态不允许开始: game_id=%d, status=%s, trace_id=%s\n",
			gameID, codeToState(g.Status), traceID)
		return nil, ErrInvalidState
	}

	ok, err := tx.ActivateGame(txCtx, gameID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	aud := &model.GameAudit{
		GameID:    g.ID,
		EventType: 3,
		PrevState: state.StateWaiting,
		NextState: next,
		Operator:  "system",
		Source:    "api",
		Payload:   "{}",
		TraceID:   traceID,
	}
	if err := tx.InsertAudit(txCtx, aud); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result = "success"
	g.Status = 2
	s.cacheSnapshot(ctx, g)
	fmt.Printf("[Game] 对局已开始: game_id=%d, status=active, trace_id=%s\n", g.ID, traceID)
	return g, nil
}

// GetGame 查询对局：Redis 快照优先，未命中回源数据库并回填缓存
func (s *gameService) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "get", start) }()

	if gameID <= 0 {
		return nil, fmt.Errorf("%w: invalid game id", ErrBadRequest)
	}

	if g := s.snapshotGame(ctx, gameID); g != nil {
		result = "success"
		return g, nil
	}

	g, err := s.st.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	result = "success"
	s.cacheSnapshot(ctx, g)
	return g, nil
}

// GetGameLedger 查询某场对局产生的全部账本记录（对账用）
func (s *gameService) GetGameLedger(ctx context.Context, gameID int64) ([]model.WalletLedger, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "ledger", start) }()

	if gameID <= 0 {
		return nil, fmt.Errorf("%w: invalid game id", ErrBadRequest)
	}

	if _, err := s.st.GetGame(ctx, gameID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	list, err := s.st.ListLedgerByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	result = "success"
	return list, nil
}

// ListOpenGames 大厅列表：可加入的 waiting 对局
func (s *gameService) ListOpenGames(ctx context.Context, limit uint) ([]model.Game, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordGameOp(result, "list", start) }()

	list, err := s.st.ListOpenGames(ctx, limit)
	if err != nil {
		return nil, err
	}

	result = "success"
	return list, nil
}

// cacheSnapshot 将对局整行写入 Redis（降级容错，失败不影响主流程）
// 缓存存原始行而非响应视图，读路径才能无损还原
func (s *gameService) cacheSnapshot(ctx context.Context, g *model.Game) {
	r := infrds.Client()
	if r == nil {
		return
	}
	if b, e := json.Marshal(g); e == nil {
		_ = r.Set(ctx, infrds.GameSnapshotKey(g.ID), b, gameSnapshotTTL).Err()
	}
}

// snapshotGame 读取 Redis 快照，未命中或解码失败返回 nil 走数据库
func (s *gameService) snapshotGame(ctx context.Context, gameID int64) *model.Game {
	r := infrds.Client()
	if r == nil {
		return nil
	}
	b, err := r.Get(ctx, infrds.GameSnapshotKey(gameID)).Bytes()
	if err != nil || len(b) == 0 {
		return nil
	}
	return decodeGameSnapshot(b)
}

// decodeGameSnapshot 反序列化对局快照，坏数据返回 nil 由调用方回源
func decodeGameSnapshot(b []byte) *model.Game {
	var g model.Game
	if err := json.Unmarshal(b, &g); err != nil || g.ID <= 0 {
		return nil
	}
	return &g
}

// GameView 构造对外快照（金额以字符串输出避免浮点序列化误差）
func GameView(g *model.Game) *model.GameSnapshot {
	snap := &model.GameSnapshot{
		GameID:    g.ID,
		Player1ID: g.Player1ID,
		EntryFee:  decimal.NewFromFloat(g.EntryFee).StringFixed(2),
		OwnerCut:  g.OwnerCut,
		Status:    codeToState(g.Status),
		SettleNo:  g.SettleNo,
		CreatedAt: chelper.TimeMilliToStr(g.CreatedAt),
	}
	if g.Player2ID.Valid {
		v := g.Player2ID.Int64
		snap.Player2ID = &v
	}
	if g.WinnerID.Valid {
		v := g.WinnerID.Int64
		snap.WinnerID = &v
	}
	return snap
}

// codeToState 将状态码转换为状态机字符串
// 1 -> waiting, 2 -> active, 3 -> settled
func codeToState(code int8) string {
	switch code {
	case 1:
		return state.StateWaiting
	case 2:
		return state.StateActive
	case 3:
		return state.StateSettled
	}
	return "unknown"
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
