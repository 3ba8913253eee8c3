package rocketmq

import (
	"context"
	"strings"
	"sync"
	"time"

	rmq "github.com/apache/rocketmq-clients/golang/v5"
	"github.com/apache/rocketmq-clients/golang/v5/credentials"

	"wager-server/common/logger"
	"wager-server/internal/config"
	"wager-server/internal/model"

	"go.uber.org/zap"
)

// Publisher is a minimal facade for sending messages.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Consumer placeholder retained for future extension.
type Consumer interface {
	Start() error
	Stop() error
}

var (
	initOnce sync.Once
	enabled  bool
	prod     rmq.Producer
	pub      Publisher
)

// SanitizeEndpoint 规整 MQ 地址：去空白、去 scheme、多地址取第一个
func SanitizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	if idx := strings.IndexAny(endpoint, ",;"); idx > 0 {
		endpoint = strings.TrimSpace(endpoint[:idx])
	}
	return endpoint
}

// Enabled reports whether MQ is configured and producer started.
func Enabled() bool { initOnce.Do(initMQ); return enabled }

// PublisherInstance returns the active publisher (stub if disabled).
func PublisherInstance() Publisher {
	initOnce.Do(initMQ)
	if pub == nil {
		pub = &stubPublisher{}
	}
	return pub
}

// Real publisher backed by RocketMQ v5 client.
type rmqPublisher struct{ p rmq.Producer }

func (r *rmqPublisher) Publish(topic string, body []byte) error {
	if r.p == nil {
		return nil
	}
	msg := &rmq.Message{Topic: topic, Body: body}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.p.Send(ctx, msg)
	return err
}

// Stub publisher used when MQ is disabled.
type stubPublisher struct{}

func (s *stubPublisher) Publish(topic string, body []byte) error {
	logger.Warn("[mq disabled] drop message", zap.String("topic", topic))
	return nil
}

func initMQ() {
	// Use SDK's ResetLogger to avoid default file-based logging under /logs
	rmq.ResetLogger()

	appCfg := config.Get()
	if appCfg == nil || strings.TrimSpace(appCfg.RocketMQ.NameServer) == "" {
		enabled = false
		pub = &stubPublisher{}
		return
	}
	endpoint := SanitizeEndpoint(appCfg.RocketMQ.NameServer)
	ak := strings.TrimSpace(appCfg.RocketMQ.AccessKey)
	sk := strings.TrimSpace(appCfg.RocketMQ.SecretKey)

	// 安全起见：若缺少凭证则禁用 MQ（避免底层 SDK 在 Sign 阶段空指针崩溃）
	if ak == "" || sk == "" {
		enabled = false
		pub = &stubPublisher{}
		logger.Warn("rocketmq disabled: missing access/secret key while endpoint present")
		return
	}

	cfg := &rmq.Config{Endpoint: endpoint}
	cfg.Credentials = &credentials.SessionCredentials{AccessKey: ak, AccessSecret: sk}

	topics := []string{model.TopicGameCreated, model.TopicGameJoined, model.TopicGameSettled}
	opts := []rmq.ProducerOption{rmq.WithTopics(topics...)}
	logger.Info("rocketmq producer config", zap.String("endpoint", endpoint), zap.Strings("topics", topics))

	logger.Info("rocketmq: creating producer", zap.Int("opts_count", len(opts)))
	p, err := rmq.NewProducer(cfg, opts...)
	if err != nil {
		logger.Error("rocketmq: producer init failed", zap.Error(err))
		enabled = false
		pub = &stubPublisher{}
		return
	}

	logger.Info("rocketmq: producer created, starting (this may take a few seconds)...")

	// 使用 goroutine 异步启动，避免阻塞主流程
	startDone := make(chan error, 1)
	go func() {
		startDone <- p.Start()
	}()

	// 等待启动完成或超时（2秒）
	select {
	case err := <-startDone:
		if err != nil {
			logger.Warn("rocketmq: producer start failed (will use stub publisher)", zap.Error(err))
			enabled = false
			pub = &stubPublisher{}
			return
		}
		prod = p
		pub = &rmqPublisher{p: p}
		enabled = true
		logger.Info("rocketmq enabled", zap.String("endpoint", endpoint))
	case <-time.After(2 * time.Second):
		logger.Warn("rocketmq: producer start timeout (will use stub publisher, messages will be dropped)")
		enabled = false
		pub = &stubPublisher{}
		return
	}
}
