package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/pkg/config"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()

	base := map[string]string{
		"HTTP_PORT":        "0",
		"CLOCK_MODE":       config.ClockManual,
		"CHAIN_START_TIME": "1700000000",
		"STORAGE_MODE":     config.StorageNone,
		"ORACLE_REPORTERS": protocol.DefaultScenario().Reporter.Hex(),
	}
	for k, v := range env {
		base[k] = v
	}
	for k, v := range base {
		t.Setenv(k, v)
	}

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	return cfg
}

func TestNew_DeploysProtocolAndFundsGenesis(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"GENESIS_FUND": "250"})

	a, err := New(cfg, zaptest.NewLogger(t), &Options{DisableHTTP: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	p := a.Protocol()
	require.NotNil(t, p.Binary)
	assert.Equal(t, cfg.Admin(), p.Admin)
	assert.Equal(t, uint64(1_700_000_000), a.Chain().Now())
	assert.Positive(t, a.Chain().Height())
	assert.Equal(t, fixed.Units(250), a.Chain().NativeBalance(cfg.Admin()))
	assert.Equal(t, fixed.Units(250), a.Chain().NativeBalance(protocol.DefaultScenario().Reporter))
	assert.Nil(t, a.writer)
}

func TestApp_RunsScenarioWithConsoleStorage(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"STORAGE_MODE": config.StorageConsole})

	a, err := New(cfg, zaptest.NewLogger(t), &Options{DisableHTTP: true})
	require.NoError(t, err)
	require.NotNil(t, a.writer)

	a.Start()
	rec := httptest.NewRecorder()
	a.healthChecker.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"ok"`)

	sum, err := protocol.RunBinary(a.Protocol(), protocol.DefaultScenario(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, sum.FinalPool.IsZero())

	require.NoError(t, a.Shutdown())
	select {
	case <-a.writer.Done():
	default:
		t.Fatal("storage writer still running after shutdown")
	}
}

func TestApp_WallClockAdvancesChain(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"CLOCK_MODE":          config.ClockWall,
		"CLOCK_SYNC_INTERVAL": "10ms",
		"CHAIN_START_TIME":    "1",
	})

	a, err := New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	a.Start()
	require.Eventually(t, func() bool {
		return a.Chain().Now() > 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Shutdown())
}
