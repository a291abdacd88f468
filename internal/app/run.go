package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mselser95/settlement-engine/pkg/config"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("clock-mode", a.cfg.ClockMode),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.Start()

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Uint64("height", a.chain.Height()))

	return a.waitForShutdown()
}

// Start launches the background components and marks the node ready.
func (a *App) Start() {
	if a.httpServer != nil {
		a.wg.Add(1)
		go a.runHTTPServer()
	}

	if a.writer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.writer.Run(a.ctx)
		}()
	}

	if a.cfg.ClockMode == config.ClockWall {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.chain.RunWallClock(a.ctx, a.cfg.ClockSyncInterval)
		}()
	}

	a.healthChecker.SetReady(true)
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
