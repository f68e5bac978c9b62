package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steampunk99/Hermes/internal/chain"
	"github.com/steampunk99/Hermes/internal/config"
	"github.com/steampunk99/Hermes/internal/database"
	"github.com/steampunk99/Hermes/internal/event"
	"github.com/steampunk99/Hermes/internal/keystore"
	"github.com/steampunk99/Hermes/internal/logger"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/payout"
	"github.com/steampunk99/Hermes/internal/relay"
	"github.com/steampunk99/Hermes/internal/router"
	"github.com/steampunk99/Hermes/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	setupLogger(cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链客户端和合约
	chainManager, err := chain.NewManager(cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer chainManager.Close()

	// 业务逻辑
	ledgerLogic := logic.NewLedgerLogic(db)
	eventLogic := logic.NewEventLogic(db)
	gasLogic := logic.NewGasLogic(db)

	// 托管密钥库
	ks, err := keystore.New(cfg.Keystore)
	if err != nil {
		logger.Fatal("Failed to initialize keystore: %v", err)
	}

	// 中继服务
	relayService, err := relay.NewService(chainManager, ks, gasLogic, cfg.Relay)
	if err != nil {
		logger.Fatal("Failed to initialize relay service: %v", err)
	}

	// 事件调度器：订阅和扫描两条路径的幂等汇合点
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := event.NewDispatcher(db, ledgerLogic)
	go dispatcher.Run(ctx)

	// 对账扫描器
	contracts := chainManager.GetMonitoredContracts()
	sources := make([]event.EventSource, 0, len(contracts))
	for _, c := range contracts {
		sources = append(sources, c)
	}
	scanner := event.NewScanner(chainManager, sources, dispatcher, eventLogic, cfg.Task.MaxChunk)
	if err := scanner.EnsureStates(); err != nil {
		logger.Fatal("Failed to initialize reconciliation cursors: %v", err)
	}

	// 启动扫描一次，追回停机期间漏掉的事件，再开实时订阅
	scanner.ScanAll(ctx)

	listener := event.NewListener(chainManager, dispatcher)
	listener.Start(ctx)

	// 启动定时任务
	payoutClient := payout.NewClient(cfg.Payout)
	taskManager := task.Start(db, chainManager, scanner, payoutClient, cfg)
	defer taskManager.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, relayService)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 优雅退出：先停收请求，再停后台组件
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	cancel()
	logger.Info("Server exited")
}

// setupLogger 按配置初始化全局日志器
func setupLogger(cfg config.LogConfig) {
	level := logger.ParseLogLevel(cfg.Level)

	var l *logger.Logger
	var err error
	if cfg.Output == "file" {
		l, err = logger.NewWithFileRotation(level, cfg.File)
	} else {
		l, err = logger.New(level)
	}
	if err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	logger.SetDefaultLogger(l)
}
