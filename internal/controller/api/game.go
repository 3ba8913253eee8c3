package api

import (
	"errors"
	"strconv"
	"strings"

	chelper "wager-server/common/helper"
	helper "wager-server/internal/common/helper"
	"wager-server/internal/common/response"
	infmysql "wager-server/internal/infra/mysql"
	"wager-server/internal/model"
	"wager-server/internal/service"
	"wager-server/internal/store"

	beego "github.com/beego/beego/v2/server/web"

	mysqlerr "github.com/go-sql-driver/mysql"
	decimal "github.com/shopspring/decimal"
)

// 服务构造器（测试可替换）
var newGameService = func() service.GameService {
	return service.NewGameService(store.NewMySQLStoreWithReplica(infmysql.SQLX(), infmysql.SlaveSQLX()))
}

type GameController struct{ beego.Controller }

// Create 处理创建对局接口：POST /api/games
func (c *GameController) Create() {
	// 1) 解析入参与基本校验
	// 这里必须要对业务参数严格校验，后续service不再重复校验
	gp, ok, msg := helper.ParseAndValidateCreateGame(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	svc := newGameService()
	traceID := helper.GetTraceID(c.Ctx)

	g, err := svc.CreateGame(c.Ctx.Request.Context(), service.CreateGameInput{
		Player1ID: gp.Player1Id,
		EntryFee:  gp.EntryFee,
		OwnerCut:  gp.OwnerCut,
		TraceID:   traceID,
	})
	if err != nil {
		writeGameError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, gameView(g), traceID)
}

// Join 处理加入对局接口：POST /api/games/join
func (c *GameController) Join() {
	jp, ok, msg := helper.ParseAndValidateJoinGame(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	svc := newGameService()
	traceID := helper.GetTraceID(c.Ctx)

	g, err := svc.JoinGame(c.Ctx.Request.Context(), service.JoinGameInput{
		GameID:    jp.GameId,
		Player2ID: jp.Player2Id,
		TraceID:   traceID,
	})
	if err != nil {
		writeGameError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, gameView(g), traceID)
}

// Start 处理开始对局接口：POST /api/games/start
// 加入与激活解耦的部署使用；常规流程中 Join 已激活对局
func (c *GameController) Start() {
	traceID := helper.GetTraceID(c.Ctx)

	gameID, err := strconv.ParseInt(strings.TrimSpace(c.Ctx.Input.Query("game_id")), 10, 64)
	if err != nil || gameID <= 0 {
		response.BadRequest(&c.Controller, "game_id required", traceID)
		return
	}

	svc := newGameService()
	g, err := svc.StartGame(c.Ctx.Request.Context(), gameID, traceID)
	if err != nil {
		writeGameError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, gameView(g), traceID)
}

// Info 处理对局查询接口：GET /api/games/info?game_id=
func (c *GameController) Info() {
	traceID := helper.GetTraceID(c.Ctx)

	gameID, err := strconv.ParseInt(strings.TrimSpace(c.Ctx.Input.Query("game_id")), 10, 64)
	if err != nil || gameID <= 0 {
		response.BadRequest(&c.Controller, "game_id required", traceID)
		return
	}

	svc := newGameService()
	g, err := svc.GetGame(c.Ctx.Request.Context(), gameID)
	if err != nil {
		writeGameError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, gameView(g), traceID)
}

// Open 处理大厅列表接口：GET /api/games/open?limit=
func (c *GameController) Open() {
	traceID := helper.GetTraceID(c.Ctx)

	limit := uint(0)
	if ls := strings.TrimSpace(c.Ctx.Input.Query("limit")); ls != "" {
		if v, err := strconv.ParseUint(ls, 10, 32); err == nil {
			limit = uint(v)
		}
	}

	svc := newGameService()
	list, err := svc.ListOpenGames(c.Ctx.Request.Context(), limit)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	views := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		views = append(views, gameView(&list[i]))
	}
	response.Success(&c.Controller, map[string]interface{}{
		"games": views,
		"count": len(views),
	}, traceID)
}

// Ledger 处理对局账本查询接口：GET /api/games/ledger?game_id=
// 返回该对局产生的全部账本记录，对账与客诉排查用
func (c *GameController) Ledger() {
	traceID := helper.GetTraceID(c.Ctx)

	gameID, err := strconv.ParseInt(strings.TrimSpace(c.Ctx.Input.Query("game_id")), 10, 64)
	if err != nil || gameID <= 0 {
		response.BadRequest(&c.Controller, "game_id required", traceID)
		return
	}

	svc := newGameService()
	list, err := svc.GetGameLedger(c.Ctx.Request.Context(), gameID)
	if err != nil {
		writeGameError(&c.Controller, err, traceID)
		return
	}

	entries := make([]map[string]interface{}, 0, len(list))
	for i := range list {
		entries = append(entries, ledgerView(&list[i]))
	}
	response.Success(&c.Controller, map[string]interface{}{
		"game_id": gameID,
		"entries": entries,
		"count":   len(entries),
	}, traceID)
}

// ledgerView 构造账本记录的响应视图（金额以字符串输出避免浮点序列化误差）
func ledgerView(l *model.WalletLedger) map[string]interface{} {
	return map[string]interface{}{
		"user_id":       l.UserID,
		"biz_type":      l.BizTypeStr,
		"amount":        chelper.TrimDecimal(decimal.NewFromFloat(l.Amount)),
		"before_amount": chelper.TrimDecimal(decimal.NewFromFloat(l.BeforeAmount)),
		"after_amount":  chelper.TrimDecimal(decimal.NewFromFloat(l.AfterAmount)),
		"currency":      l.Currency,
		"settle_no":     l.SettleNo,
		"created_at":    chelper.TimeMilliToStr(l.CreatedAt),
	}
}

// gameView 构造对局的响应视图
func gameView(g *model.Game) map[string]interface{} {
	snap := service.GameView(g)
	v := map[string]interface{}{
		"game_id":    snap.GameID,
		"player1_id": snap.Player1ID,
		"entry_fee":  snap.EntryFee,
		"owner_cut":  snap.OwnerCut,
		"status":     snap.Status,
	}
	if snap.Player2ID != nil {
		v["player2_id"] = *snap.Player2ID
	}
	if snap.WinnerID != nil {
		v["winner_id"] = *snap.WinnerID
	}
	if snap.SettleNo != "" {
		v["settle_no"] = snap.SettleNo
	}
	if snap.CreatedAt != "" {
		v["created_at"] = snap.CreatedAt
	}
	return v
}

// writeGameError 将对局服务错误映射为响应码
func writeGameError(c *beego.Controller, err error, traceID string) {
	// MySQL 唯一键冲突
	if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
		response.Conflict(c, response.CodeDuplicateKey, traceID)
		return
	}
	if errors.Is(err, service.ErrGameNotFound) {
		response.NotFound(c, "对局不存在", traceID)
		return
	}
	if errors.Is(err, service.ErrUserNotFound) {
		response.NotFound(c, "用户不存在", traceID)
		return
	}
	if errors.Is(err, service.ErrSelfJoin) {
		response.Error(c, 400, response.CodeSelfJoin, traceID)
		return
	}
	if errors.Is(err, service.ErrAlreadyJoined) {
		response.Conflict(c, response.CodeAlreadyJoined, traceID)
		return
	}
	if errors.Is(err, service.ErrInvalidState) {
		response.Conflict(c, response.CodeInvalidState, traceID)
		return
	}
	if errors.Is(err, service.ErrInsufficientStake) {
		response.Error(c, 400, response.CodeInsufficientBalance, traceID)
		return
	}
	if errors.Is(err, service.ErrBadRequest) {
		response.BadRequest(c, err.Error(), traceID)
		return
	}
	// 用户状态异常
	if strings.Contains(err.Error(), "user disabled") {
		response.BadRequest(c, "用户状态异常", traceID)
		return
	}
	// 系统错误
	response.InternalError(c, traceID)
}
