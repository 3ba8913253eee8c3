package api

import (
	"context"
	"time"

	infmysql "wager-server/internal/infra/mysql"
	infrds "wager-server/internal/infra/redis"

	beego "github.com/beego/beego/v2/server/web"
)

// HealthController 提供健康检查端点：/healthz 与 /readyz
// readyz 探测 MySQL 与 Redis 连通性，任一不可用即返回 503

type HealthController struct{ beego.Controller }

const probeTimeout = 500 * time.Millisecond

// Healthz 存活探针：仅返回进程存活
func (c *HealthController) Healthz() {
	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ok"))
}

// Readyz 就绪探针：依赖全部可达才算就绪
func (c *HealthController) Readyz() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), probeTimeout)
	defer cancel()

	if err := infmysql.Ping(ctx); err != nil {
		c.Ctx.Output.SetStatus(503)
		_ = c.Ctx.Output.Body([]byte("mysql unavailable"))
		return
	}
	if r := infrds.Client(); r != nil {
		if err := r.Ping(ctx).Err(); err != nil {
			c.Ctx.Output.SetStatus(503)
			_ = c.Ctx.Output.Body([]byte("redis unavailable"))
			return
		}
	}

	c.Ctx.Output.SetStatus(200)
	_ = c.Ctx.Output.Body([]byte("ready"))
}
