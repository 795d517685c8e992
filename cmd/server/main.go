package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/insurebot/config"
	"github.com/weibaohui/insurebot/internal/eventbus"
	"github.com/weibaohui/insurebot/internal/handler"
	"github.com/weibaohui/insurebot/internal/pkg/database"
	"github.com/weibaohui/insurebot/internal/pkg/llm"
	"github.com/weibaohui/insurebot/internal/pkg/recognition"
	"github.com/weibaohui/insurebot/internal/pkg/telegram"
	"github.com/weibaohui/insurebot/internal/repository"
	"github.com/weibaohui/insurebot/internal/router"
	"github.com/weibaohui/insurebot/internal/service/bot"
	"github.com/weibaohui/insurebot/internal/service/dispatch"
	"github.com/weibaohui/insurebot/internal/service/document"
	"github.com/weibaohui/insurebot/internal/service/export"
	"github.com/weibaohui/insurebot/internal/service/policy"
	"github.com/weibaohui/insurebot/internal/service/session"
	"github.com/weibaohui/insurebot/internal/subscriber"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	setWebhook := flag.Bool("set-webhook", false, "register telegram.webhook_url with the Bot API on startup")
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Database.Type == "sqlite" || cfg.Database.Type == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	if err := os.MkdirAll(cfg.Recognition.TempDir, 0755); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)

	// 事件总线：状态变更写入审计表
	bus := eventbus.NewConversationEventBus()
	subscriber.NewTransitionSubscriber(transitionRepo).Register(bus)

	// 外部协作者
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tg := telegram.NewClient(cfg)
	generator, err := llm.NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM: %v", err)
	}
	documents := document.NewService(recognition.NewClient(cfg), cfg)

	// 初始化 Service
	sessions := session.NewManager(sessionRepo)
	machine := bot.NewMachine(bot.Deps{
		Transport:    tg,
		Documents:    documents,
		Generator:    generator,
		PolicyWriter: policy.NewWriter(generator),
		Price:        cfg.Insurance.Price,
		Currency:     cfg.Insurance.Currency,
		AIWelcome:    cfg.Bot.AIWelcome,
	})
	botService := bot.NewService(machine, sessions, bus)

	// 异步模式下更新在协程池中按聊天串行处理
	var submitter handler.MessageSubmitter
	if cfg.Server.AsyncUpdates {
		dispatcher, err := dispatch.NewDispatcher(cfg.Server.Workers, cfg.Bot.UpdateTimeout, botService)
		if err != nil {
			log.Fatalf("Failed to initialize dispatcher: %v", err)
		}
		defer dispatcher.Stop(shutdownTimeout)
		submitter = dispatcher
	}

	// 初始化 Handler
	webhookHandler := handler.NewWebhookHandler(cfg.Telegram.WebhookSecret, botService, submitter)
	adminHandler := handler.NewAdminHandler(sessions, transitionRepo, export.NewService(sessions))

	if *setWebhook {
		registerWebhook(ctx, tg, cfg)
	}

	// 设置路由
	r := router.Setup(cfg, webhookHandler, adminHandler)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	klog.V(6).Info("收到退出信号，开始关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("服务关闭失败: %v", err)
	}
}

// registerWebhook 启动时向 Bot API 注册 webhook 地址
func registerWebhook(ctx context.Context, tg *telegram.Client, cfg *config.Config) {
	if cfg.Telegram.WebhookURL == "" {
		klog.Warningf("未配置 telegram.webhook_url，跳过注册")
		return
	}
	if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
		klog.Errorf("注册 webhook 失败: %v", err)
		return
	}
	klog.V(6).Infof("webhook 已注册: %s", cfg.Telegram.WebhookURL)
}
