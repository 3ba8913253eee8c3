package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"

	chelper "wager-server/common/helper"
	"wager-server/common/logger"
	"wager-server/internal/config"
	infmysql "wager-server/internal/infra/mysql"
	infmq "wager-server/internal/infra/rocketmq"
	"wager-server/internal/model"

	"go.uber.org/zap"
)

// StartOutboxDispatcher 启动 Outbox 分发器，支持通过 ctx 优雅退出
// 分发目标为 MQ 与可选的外部回调，两者至少启用一个才运行。
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup) {
	cfg := config.Get()
	notifyEnabled := cfg != nil && cfg.Notify.Enabled && !chelper.IsEmptyString(cfg.Notify.WebhookURL)
	if !infmq.Enabled() && !notifyEnabled {
		return
	}
	wg.Add(1)
	pub := infmq.PublisherInstance()
	go func() {
		// 错峰启动，避免多实例同一时刻扫表
		time.Sleep(time.Duration(chelper.GenerateRandNum(0, 500)) * time.Millisecond)
		ticker := time.NewTicker(1 * time.Second)
		defer wg.Done()

		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c, cancel := context.WithTimeout(ctx, 2*time.Second)
				rows, err := model.ListOutboxPending(c, infmysql.SQLX(), 100)
				cancel()
				if err != nil {
					logger.Warn("outbox: list pending failed", zap.Error(err))
					continue
				}
				for _, r := range rows {
					if infmq.Enabled() {
						if err := pub.Publish(r.Topic, []byte(r.Payload)); err != nil {
							_ = model.MarkOutboxFailed(ctx, infmysql.SQLX(), r.ID, truncateErr(err))
							continue
						}
					}
					if notifyEnabled {
						if err := notifyWebhook(cfg, r); err != nil {
							_ = model.MarkOutboxFailed(ctx, infmysql.SQLX(), r.ID, truncateErr(err))
							continue
						}
					}
					if err := model.MarkOutboxSent(ctx, infmysql.SQLX(), r.ID); err != nil {
						logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
					}
				}
			}
		}
	}()
}

// notifyWebhook 将事件推送到外部回调地址，非 2xx 视为失败进入重试
func notifyWebhook(cfg *config.Config, r model.OutboxRow) error {
	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Event":      r.Topic,
	}
	if cfg.Notify.Secret != "" {
		headers["X-Notify-Secret"] = cfg.Notify.Secret
	}
	_, status, err := chelper.HttpDoTimeoutForWebhook([]byte(r.Payload), "POST", cfg.Notify.WebhookURL, headers, chelper.WebhookTimeout)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook status %d", status)
	}
	return nil
}

func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}

// StartInboxConsumer 启动 RocketMQ v5 SimpleConsumer，将消息可靠落库至 inbox 表（去重）
// 未配置 name_server 或 consumer_group 时不启动
func StartInboxConsumer(ctx context.Context, wg *sync.WaitGroup) {
	// Ensure RocketMQ SDK logs go to console instead of /logs
	rmq.ResetLogger()

	appCfg := config.Get()
	if appCfg == nil || strings.TrimSpace(appCfg.RocketMQ.NameServer) == "" {
		return
	}
	endpoint := infmq.SanitizeEndpoint(appCfg.RocketMQ.NameServer)
	logger.Info("[mq] consumer endpoint", zap.String("endpoint", endpoint))

	group := strings.TrimSpace(appCfg.RocketMQ.ConsumerGroup)
	if group == "" {
		logger.Warn("[mq] consumer not started: empty consumer_group")
		return
	}
	ak := strings.TrimSpace(appCfg.RocketMQ.AccessKey)
	sk := strings.TrimSpace(appCfg.RocketMQ.SecretKey)
	if ak == "" || sk == "" {
		logger.Warn("[mq] consumer not started: missing access/secret key")
		return
	}
	cfg := &rmq.Config{Endpoint: endpoint, ConsumerGroup: group}
	cfg.Credentials = &credentials.SessionCredentials{AccessKey: ak, AccessSecret: sk}

	// 订阅结算事件 topic（可通过配置覆盖），默认 SUB_ALL
	topic := strings.TrimSpace(appCfg.RocketMQ.TopicSettle)
	if topic == "" {
		topic = model.TopicGameSettled
	}
	subs := map[string]*rmq.FilterExpression{topic: rmq.SUB_ALL}

	awaitDuration := 5 * time.Second
	maxMessageNum := int32(16)
	invisibleDuration := 20 * time.Second

	// 尝试启动 SimpleConsumer（带重试，避免容器刚启动未就绪导致一次性失败）
	var sc rmq.SimpleConsumer
	var err error
	for i := 0; i < 6; i++ { // 最长约 6*3s = 18s
		sc, err = rmq.NewSimpleConsumer(cfg,
			rmq.WithAwaitDuration(awaitDuration),
			rmq.WithSubscriptionExpressions(subs),
		)
		if err == nil {
			if e := sc.Start(); e == nil {
				break
			} else {
				err = e
			}
		}
		logger.Warn("[mq] simple consumer start retry", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		logger.Error("[mq] start simple consumer failed", zap.Error(err))
		return
	}
	logger.Info("[mq] inbox consumer started", zap.String("group", group), zap.String("topic", topic))

	wg.Add(1)

	go func() {
		defer wg.Done()

		defer sc.GracefulStop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				mvs, err := sc.Receive(ctx, maxMessageNum, invisibleDuration)
				if err != nil {
					// 上下文取消则直接退出
					if ctx.Err() != nil {
						return
					}
					logger.Warn("[mq] receive error", zap.Error(err))
					continue
				}
				for _, mv := range mvs {
					id := mv.GetMessageId()
					topic := mv.GetTopic()
					body := mv.GetBody()
					if err := model.UpsertInbox(ctx, infmysql.SQLX(), id, topic, string(body), time.Now().UnixMilli()); err != nil {
						logger.Warn("[mq] upsert inbox failed", zap.String("id", id), zap.String("topic", topic), zap.Error(err))
						continue
					}
					var payload map[string]any
					if err := json.Unmarshal(body, &payload); err == nil {
						if evt, ok := payload["event"].(string); ok && evt == "game_settled" {
							settleNo, _ := payload["settle_no"].(string)
							gameID, _ := payload["game_id"].(float64)
							logger.Info("[mq] consumed settle event", zap.String("settle_no", settleNo), zap.Int64("game_id", int64(gameID)))
						}
					}
					if err := sc.Ack(ctx, mv); err != nil {
						logger.Warn("[mq] ack failed", zap.String("id", id), zap.Error(err))
					}
				}
			}
		}
	}()
}
