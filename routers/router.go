package routers

import (
	"wager-server/internal/config"
	"wager-server/internal/controller/api"
	"wager-server/internal/metrics"
	"wager-server/internal/middleware"

	beego "github.com/beego/beego/v2/server/web"
)

// init 注册HTTP路由与全局过滤器
func init() {
	cfg := config.Get()

	// 全局过滤器（按执行顺序）
	// 1. Panic Recovery（最先执行，捕获所有 panic）
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RecoveryFilter)

	// 2. 请求ID注入
	beego.InsertFilter("/*", beego.BeforeRouter, middleware.RequestIDFilter)

	// 3. CORS 处理（如果启用）
	if cfg != nil && cfg.CORS.Enabled {
		beego.InsertFilter("/*", beego.BeforeExec, middleware.CORSFilter)
	}

	// 4. HTTP 指标收集
	beego.InsertFilter("/*", beego.BeforeExec, metrics.HTTPMetricsFilter)
	beego.InsertFilter("/*", beego.FinishRouter, metrics.HTTPMetricsAfter)

	// 静态文件服务
	beego.SetStaticPath("/static", "static")

	// 健康检查（无需认证）
	beego.Router("/healthz", &api.HealthController{}, "get:Healthz")
	beego.Router("/readyz", &api.HealthController{}, "get:Readyz")

	// ========== 对局 API（需要认证） ==========

	// 对局接口：平台认证 + 限流（结算单独走管理员认证）
	gameRoutes := []string{"/api/games", "/api/games/join", "/api/games/start", "/api/games/info", "/api/games/open", "/api/games/ledger"}
	for _, p := range gameRoutes {
		if cfg != nil && cfg.Auth.DemoMode {
			// 演示模式：简化认证
			beego.InsertFilter(p, beego.BeforeExec, middleware.DemoAuthFilter)
		} else {
			// 生产模式：平台签名认证
			beego.InsertFilter(p, beego.BeforeExec, middleware.PlatformAuthFilter)
		}
	}
	if cfg != nil && cfg.RateLimit.Enabled {
		beego.InsertFilter("/api/games", beego.BeforeExec, middleware.RateLimitFilter)
		beego.InsertFilter("/api/games/join", beego.BeforeExec, middleware.RateLimitFilter)
	}
	beego.Router("/api/games", &api.GameController{}, "post:Create")
	beego.Router("/api/games/join", &api.GameController{}, "post:Join")
	beego.Router("/api/games/start", &api.GameController{}, "post:Start")
	beego.Router("/api/games/info", &api.GameController{}, "get:Info")
	beego.Router("/api/games/open", &api.GameController{}, "get:Open")
	beego.Router("/api/games/ledger", &api.GameController{}, "get:Ledger")

	// 结算接口：管理员认证（结算由运营侧触发）
	if cfg != nil && cfg.Auth.Admin.Enabled {
		beego.InsertFilter("/api/games/settle", beego.BeforeExec, middleware.AdminAuthFilter)
	}
	beego.Router("/api/games/settle", &api.SettleController{}, "post:Settle")

	// 用户接口：平台认证（用户只能查询自己的数据）
	if cfg != nil && cfg.Auth.DemoMode {
		beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.DemoAuthFilter)
	} else {
		beego.InsertFilter("/api/user/*", beego.BeforeExec, middleware.PlatformAuthFilter)
	}

	// 配置了 JWT 密钥时，余额查询与登出额外要求用户令牌
	if cfg != nil && cfg.Auth.JWT.Secret != "" {
		beego.InsertFilter("/api/user/balance", beego.BeforeExec, middleware.UserAuthFilter)
		beego.InsertFilter("/api/user/logout", beego.BeforeExec, middleware.UserAuthFilter)
	}

	beego.Router("/api/user/register", &api.UserController{}, "post:Register")
	beego.Router("/api/user/token", &api.UserController{}, "post:Token")
	beego.Router("/api/user/logout", &api.UserController{}, "post:Logout")
	beego.Router("/api/user/balance", &api.UserController{}, "get:Balance")
}
