// Package app wires the settlement node: ledger, deployed protocol, event
// persistence, the read API and the event stream.
package app

import (
	"context"
	"sync"

	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/internal/storage"
	"github.com/mselser95/settlement-engine/pkg/cache"
	"github.com/mselser95/settlement-engine/pkg/config"
	"github.com/mselser95/settlement-engine/pkg/healthprobe"
	"github.com/mselser95/settlement-engine/pkg/httpserver"
	"github.com/mselser95/settlement-engine/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	chain         *ledger.Chain
	protocol      *protocol.Protocol
	hub           *websocket.Hub
	cache         *cache.RistrettoCache
	store         storage.Storage // nil when STORAGE_MODE=none
	writer        *storage.Writer
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// DisableHTTP skips the HTTP server, for embedding and tests.
	DisableHTTP bool
}

// Protocol returns the deployed contract set.
func (a *App) Protocol() *protocol.Protocol {
	return a.protocol
}

// Chain returns the ledger.
func (a *App) Chain() *ledger.Chain {
	return a.chain
}
