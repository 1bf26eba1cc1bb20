package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"VoiceGate/global"
	appcfg "VoiceGate/global/config"
	"VoiceGate/logger"
	"VoiceGate/module/user"
	"VoiceGate/module/user/service"
	"VoiceGate/service/chat"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	defer logger.Sync()

	// 1) 配置
	cfg, err := appcfg.Load()
	if err != nil {
		logger.Error("[Boot] config", zap.Error(err))
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2) 存储与可选观察者
	dir, err := global.ConfigDirectory(ctx, cfg)
	if err != nil {
		logger.Error("[Boot] directory", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = dir.Close() }()

	observers, closers := global.ConfigObservers(ctx, cfg)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	// 3) 注册表 / 分发器 / 会话服务
	reg := chat.NewRegistry(dir, observers...)
	disp := chat.NewDispatcher(reg, dir)
	ws := chat.NewServer(reg, dir, global.ServerOptions(cfg))
	svc := service.NewUserService(dir, reg, disp)

	// 4) HTTP + WebSocket
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	routes := global.ConfigMiddleware(r, cfg)
	ws.Routes(r)
	user.NewHandler(svc).RegisterRoutes(routes)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": cfg.NodeID, "live": len(reg.Snapshot().Live)})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HTTPAddr), zap.String("directory", cfg.Directory))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[HTTP] server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[Boot] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown; the registry closes them
	reg.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[HTTP] shutdown", zap.Error(err))
	}
}
