package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Queued events are flushed
// to storage before the store is closed.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if a.httpServer != nil {
		err := a.httpServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("http-server-shutdown-error", zap.Error(err))
		}
	}

	// Stream clients are hijacked connections the HTTP server no longer tracks.
	a.hub.Close()

	// Stops the wall clock and lets the storage writer drain.
	a.cancel()
	a.wg.Wait()

	closeStore(a.store, a.logger)
	a.cache.Close()

	a.logger.Info("application-shutdown-complete", zap.Uint64("height", a.chain.Height()))

	return nil
}
