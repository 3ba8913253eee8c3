package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"wager-server/common"
	"wager-server/common/logger"
	"wager-server/internal/config"
	infmysql "wager-server/internal/infra/mysql"
	infrds "wager-server/internal/infra/redis"
	_ "wager-server/routers"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wager-server/internal/worker"
)

func main() {
	// 1) 日志
	logger.InitLogger()
	defer logger.Sync()

	// 2) 配置：Nacos/etcd 优先，本地文件兜底
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatalf("config load failed", zap.Error(err))
	}
	config.Set(cfg)
	config.SetCurrent(cfg)
	if cfg.Server.LogLevel != "" {
		logger.SetLevel(cfg.Server.LogLevel)
	}

	// 配置热更新：目前仅刷新动态开关与阈值
	if err := config.StartWatch(ctx, func(oldCfg, newCfg *config.Config) {
		config.Set(newCfg)
		config.SetCurrent(newCfg)
		logger.Info("config reloaded")
	}); err != nil {
		logger.Warn("config watch not started", zap.Error(err))
	}

	// 3) MySQL
	sqlxDB := common.InitDB(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	if cfg.Database.ConnMaxLifetimeSec > 0 {
		sqlxDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second)
	}
	infmysql.UseDB(sqlxDB.DB)

	// 配置了从库时启用读写分离，快照类查询走从库
	if cfg.Database.SlaveDSN != "" {
		slaveDB := common.InitSlaveDB(cfg.Database.SlaveDSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
		infmysql.UseSlaveDB(slaveDB.DB)
		fmt.Printf("[Main]  从库已启用: max_open=%d\n", cfg.Database.MaxOpenConns)
	}

	// 4) Redis：单机或哨兵
	if cfg.Redis.Mode == "sentinel" {
		infrds.InitSentinel(cfg.Redis.SentinelAddrs, cfg.Redis.Password, cfg.Redis.MasterName, cfg.Redis.DB)
	} else {
		infrds.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	if err := infrds.Ping(ctx, 2*time.Second); err != nil {
		logger.Warn("redis not reachable at startup", zap.Error(err))
	}

	// 5) 后台任务：Outbox 分发与 MQ 消费
	var wg sync.WaitGroup
	worker.StartOutboxDispatcher(ctx, &wg)
	worker.StartInboxConsumer(ctx, &wg)

	// 6) Prometheus 指标端口（与业务端口分离）
	if cfg.Observability.EnableProm {
		go func() {
			addr := cfg.Observability.PromAddr
			if addr == "" {
				addr = ":9090"
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server exit", zap.Error(err))
			}
		}()
	}

	// 7) 信号处理：优雅退出
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		fmt.Printf("[Main]  收到退出信号: %v，开始优雅关闭\n", sig)
		cancel()
		// 等待后台任务收尾后退出进程
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			logger.Warn("graceful shutdown timeout")
		}
		_ = infrds.Close()
		logger.Sync()
		os.Exit(0)
	}()

	// 8) HTTP 服务
	if cfg.Server.Port > 0 {
		beego.BConfig.Listen.HTTPPort = cfg.Server.Port
	}
	beego.BConfig.CopyRequestBody = true
	fmt.Printf("[Main]  服务启动: port=%d\n", beego.BConfig.Listen.HTTPPort)
	beego.Run()
}
