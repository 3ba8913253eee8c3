package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	chelper "wager-server/common/helper"
	"wager-server/internal/auth"
	helper "wager-server/internal/common/helper"
	"wager-server/internal/common/response"
	"wager-server/internal/config"
	infmysql "wager-server/internal/infra/mysql"
	"wager-server/internal/service"
	"wager-server/internal/store"

	"github.com/shopspring/decimal"

	beego "github.com/beego/beego/v2/server/web"

	mysqlerr "github.com/go-sql-driver/mysql"
)

// 服务构造器（测试可替换）
var newUserService = func() service.UserService {
	return service.NewUserService(store.NewMySQLStoreWithReplica(infmysql.SQLX(), infmysql.SlaveSQLX()))
}

type UserController struct{ beego.Controller }

// Register 处理账户开通接口：POST /api/user/register
// 初始余额由 escrow.starting_balance 决定
func (c *UserController) Register() {
	up, ok, msg := helper.ParseAndValidateRegisterUser(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	traceID := helper.GetTraceID(c.Ctx)
	svc := newUserService()

	u, err := svc.CreateUser(c.Ctx.Request.Context(), service.CreateUserInput{
		Username: up.Username,
		TraceID:  traceID,
	})
	if err != nil {
		// 用户名唯一键冲突
		if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
			response.Conflict(&c.Controller, response.CodeDuplicateKey, traceID)
			return
		}
		if errors.Is(err, service.ErrBadRequest) {
			response.BadRequest(&c.Controller, err.Error(), traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{
		"user_id":  u.ID,
		"username": u.Username,
		"balance":  chelper.TrimDecimal(decimal.NewFromFloat(u.Balance)),
	}, traceID)
}

// Token 处理令牌签发接口：POST /api/user/token
// 平台认证通过后按 user_id + username 换取 JWT 访问令牌与刷新令牌
func (c *UserController) Token() {
	tp, ok, msg := helper.ParseAndValidateUserToken(c.Ctx)
	if !ok {
		response.BadRequest(&c.Controller, msg, helper.GetTraceID(c.Ctx))
		return
	}

	traceID := helper.GetTraceID(c.Ctx)
	svc := newUserService()

	u, err := svc.GetUser(c.Ctx.Request.Context(), tp.UserId)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(&c.Controller, "用户不存在", traceID)
			return
		}
		if errors.Is(err, service.ErrBadRequest) {
			response.BadRequest(&c.Controller, err.Error(), traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}
	if u.Username != tp.Username {
		response.ErrorWithMessage(&c.Controller, 401, response.CodeUnauthorized, "用户名不匹配", traceID)
		return
	}

	// 平台信息由认证过滤器注入；演示模式下为演示平台
	var platformID int8
	if v := c.Ctx.Input.GetData("platform_id"); v != nil {
		if p, ok := v.(int8); ok {
			platformID = p
		}
	}
	appKey := ""
	if v := c.Ctx.Input.GetData("app_key"); v != nil {
		appKey = fmt.Sprint(v)
	}

	access, err := auth.GenerateAccessToken(u.ID, u.Username, platformID, appKey)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}
	refresh, err := auth.GenerateRefreshToken(u.ID, u.Username, platformID, appKey)
	if err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	expiresIn := 0
	if cfg := config.Get(); cfg != nil {
		expiresIn = cfg.Auth.JWT.AccessTokenTTL
	}
	response.Success(&c.Controller, map[string]interface{}{
		"token_type":    "Bearer",
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    expiresIn,
	}, traceID)
}

// Logout 处理登出接口：POST /api/user/logout
// 将当前访问令牌加入黑名单，剩余有效期内不再接受
func (c *UserController) Logout() {
	traceID := helper.GetTraceID(c.Ctx)

	claims, ok := c.Ctx.Input.GetData("jwt_claims").(*auth.JWTClaims)
	if !ok || claims == nil {
		response.ErrorWithMessage(&c.Controller, 401, response.CodeUnauthorized, "缺少认证Token", traceID)
		return
	}

	authHeader := strings.TrimSpace(c.Ctx.Input.Header("Authorization"))
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 {
		response.ErrorWithMessage(&c.Controller, 401, response.CodeUnauthorized, "无效的认证格式", traceID)
		return
	}

	expiresAt := time.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := auth.RevokeToken(c.Ctx.Request.Context(), parts[1], expiresAt); err != nil {
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, map[string]interface{}{"user_id": claims.UserID}, traceID)
}

// Balance 处理余额查询接口：GET /api/user/balance?user_id=
func (c *UserController) Balance() {
	traceID := helper.GetTraceID(c.Ctx)

	raw := strings.TrimSpace(c.Ctx.Input.Query("user_id"))
	if !chelper.CtypeDigit(raw) {
		response.BadRequest(&c.Controller, "user_id required", traceID)
		return
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(&c.Controller, "user_id required", traceID)
		return
	}

	svc := newUserService()
	out, err := svc.GetBalance(c.Ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(&c.Controller, "用户不存在", traceID)
			return
		}
		response.InternalError(&c.Controller, traceID)
		return
	}

	response.Success(&c.Controller, out, traceID)
}
