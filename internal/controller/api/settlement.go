package api

import (
	"errors"
	"strings"

	chelper "wager-server/common/helper"
	helper "wager-server/internal/common/helper"
	"wager-server/internal/common/response"
	infmysql "wager-server/internal/infra/mysql"
	"wager-server/internal/service"
	"wager-server/internal/store"

	beego "github.com/beego/beego/v2/server/web"

	mysqlerr "github.com/go-sql-driver/mysql"
)

// 服务构造器（测试可替换）
var newSettlementService = func() service.SettlementService {
	return service.NewSettlementService(store.NewMySQLStoreWithReplica(infmysql.SQLX(), infmysql.SlaveSQLX()))
}

type SettleController struct{ beego.Controller }

// Settle 处理结算接口：POST /api/games/settle
// 幂等键可选，带键的重试返回首次结算结果
func (c *SettleController) Settle() {
	sp, ok, msg := helper.ParseAndValidateSettleGame(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	traceID := helper.GetTraceID(c.Ctx)
	// 操作人来自请求头，落审计前做注入过滤并限长
	operator := chelper.FilterInjection(strings.TrimSpace(c.Ctx.Input.Header("X-Operator")))
	if operator == "" {
		operator = "api"
	}
	if len(operator) > 64 {
		operator = operator[:64]
	}

	svc := newSettlementService()
	out, err := svc.SettleGame(c.Ctx.Request.Context(), service.SettleInput{
		GameID:         sp.GameId,
		WinnerID:       sp.WinnerId,
		IdempotencyKey: sp.IdempotencyKey,
		Operator:       operator,
		TraceID:        traceID,
	})
	if err != nil {
		writeSettleError(&c.Controller, err, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}

// writeSettleError 将结算服务错误映射为响应码
func writeSettleError(c *beego.Controller, err error, traceID string) {
	// MySQL 唯一键冲突（settlement_log 兜底命中）
	if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
		response.Conflict(c, response.CodeDuplicateKey, traceID)
		return
	}
	// 同一幂等键并发进行中，提示稍后重试
	if errors.Is(err, service.ErrDuplicateInFlight) {
		response.Accepted(c, "结算处理中，请稍后用相同幂等键重试", traceID)
		return
	}
	if errors.Is(err, service.ErrAlreadySettled) {
		response.Conflict(c, response.CodeAlreadySettled, traceID)
		return
	}
	if errors.Is(err, service.ErrWinnerNotInGame) {
		response.Error(c, 400, response.CodeWinnerNotInGame, traceID)
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
	if errors.Is(err, service.ErrInvalidState) {
		response.Conflict(c, response.CodeInvalidState, traceID)
		return
	}
	if errors.Is(err, service.ErrInsufficientStake) {
		response.Error(c, 400, response.CodeInsufficientBalance, traceID)
		return
	}
	if errors.Is(err, service.ErrOwnerNotConfigured) {
		response.ErrorWithMessage(c, 500, response.CodeOwnerNotConfigured, "抽成账户未配置", traceID)
		return
	}
	if errors.Is(err, service.ErrBadRequest) {
		response.BadRequest(c, err.Error(), traceID)
		return
	}
	// 系统错误
	response.InternalError(c, traceID)
}
