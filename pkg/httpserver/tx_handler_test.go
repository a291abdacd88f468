package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reporter = common.HexToAddress("0x000000000000000000000000000000000e90e700")

func (f *fixture) postRaw(t *testing.T, op string, body []byte, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tx/"+op, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.server.Handler().ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (f *fixture) post(t *testing.T, op string, from common.Address, value *uint256.Int, args any, out any) int {
	t.Helper()
	req := TxRequest{From: from, Value: value}
	if args != nil {
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		req.Args = raw
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return f.postRaw(t, op, body, out)
}

type txResult[T any] struct {
	Op     string `json:"op"`
	Height uint64 `json:"height"`
	Result T      `json:"result"`
}

func TestTxEndpoint_CreateBuyAndReadBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := f.p.Chain.Now()

	var created txResult[CreatedMarket]
	require.Equal(t, http.StatusOK, f.post(t, "market.create", creator, fixed.Units(200), map[string]any{
		"kind":                "binary",
		"question":            "Posted over HTTP?",
		"market_key":          "posted",
		"fee_bps":             100,
		"start_time":          now + 10,
		"end_time":            now + 1_000,
		"resolution_deadline": now + 2_000,
	}, &created))
	assert.Equal(t, "market.create", created.Op)
	assert.Equal(t, market.KindBinary, created.Result.Kind)
	assert.Equal(t, oracle.MarketID("posted"), created.Result.MarketID)
	addr := created.Result.Market

	require.NoError(t, f.p.Chain.SetTime(now+10))
	require.Equal(t, http.StatusOK, f.post(t, "collateral.deposit", trader, fixed.Units(100), nil, nil))
	require.Equal(t, http.StatusOK, f.post(t, "collateral.approve", trader, nil,
		map[string]any{"spender": addr}, nil))

	var bought txResult[market.Quote]
	require.Equal(t, http.StatusOK, f.post(t, "market.buy", trader, nil, map[string]any{
		"market":  addr,
		"outcome": market.Yes,
		"shares":  fixed.Units(5),
	}, &bought))
	assert.Equal(t, fixed.Units(5), bought.Result.Shares)
	assert.Equal(t, f.p.Chain.Height(), bought.Height)

	var detail map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/markets/"+addr.Hex(), &detail))
	assert.Equal(t, "Posted over HTTP?", detail["info"].(map[string]any)["question"])
	assert.EqualValues(t, 1, detail["stats"].(map[string]any)["trade_count"])

	var list []map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/markets?creator="+creator.Hex(), &list))
	assert.Len(t, list, 2)
}

func TestTxEndpoint_ResolvesAndPaysOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	chain := f.p.Chain
	adapter := f.p.Oracle(market.KindBinary)
	m := f.m.Address()
	target := map[string]any{"kind": "binary", "market_id": f.m.MarketID()}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range target {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	require.NoError(t, chain.Execute(admin, "oracle.set-reporter", func(tx *ledger.Tx) error {
		return adapter.SetReporter(tx, reporter, true)
	}))
	chain.Fund(reporter, fixed.Units(1_000))

	require.NoError(t, chain.SetTime(f.m.StartTime()))
	require.Equal(t, http.StatusOK, f.post(t, "collateral.deposit", trader, fixed.Units(100), nil, nil))
	require.Equal(t, http.StatusOK, f.post(t, "collateral.approve", trader, nil, map[string]any{"spender": m}, nil))
	require.Equal(t, http.StatusOK, f.post(t, "market.buy", trader, nil,
		map[string]any{"market": m, "outcome": market.Yes, "shares": fixed.Units(10)}, nil))

	require.NoError(t, chain.SetTime(f.m.ResolutionDeadline()))
	require.Equal(t, http.StatusOK, f.post(t, "market.close", trader, nil, map[string]any{"market": m}, nil))

	require.Equal(t, http.StatusOK, f.post(t, "collateral.deposit", reporter, fixed.Units(500), nil, nil))
	require.Equal(t, http.StatusOK, f.post(t, "collateral.approve", reporter, nil,
		map[string]any{"spender": adapter.Address()}, nil))

	draw, err := oracle.EncodeSports(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, f.post(t, "oracle.propose", reporter, nil,
		with(map[string]any{"payload": hexutil.Encode(draw)}), nil))

	yes, err := oracle.EncodeSports(2, 1, market.Yes)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, f.post(t, "oracle.propose", reporter, nil,
		with(map[string]any{"payload": hexutil.Encode(yes), "evidence": "ipfs://box-score"}), nil))

	assert.Equal(t, http.StatusConflict, f.post(t, "oracle.finalize", trader, nil, target, nil))
	chain.Advance(adapter.Liveness())
	require.Equal(t, http.StatusOK, f.post(t, "oracle.finalize", trader, nil, target, nil))

	assert.Equal(t, http.StatusUnprocessableEntity, f.post(t, "market.finalize", trader, nil,
		map[string]any{"market": m, "value": market.No}, nil))
	require.Equal(t, http.StatusOK, f.post(t, "market.finalize", trader, nil,
		map[string]any{"market": m, "value": market.Yes}, nil))

	var redeemed txResult[AmountResult]
	require.Equal(t, http.StatusOK, f.post(t, "market.redeem", trader, nil, map[string]any{"market": m}, &redeemed))
	assert.Equal(t, fixed.Units(10), redeemed.Result.Amount)

	var claimed txResult[AmountResult]
	require.Equal(t, http.StatusOK, f.post(t, "fees.claim-creator", creator, nil, map[string]any{"market": m}, &claimed))
	assert.Positive(t, claimed.Result.Amount.Sign())
	assert.Equal(t, claimed.Result.Amount, f.p.Collateral.BalanceOf(creator))
}

func TestTxEndpoint_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.m.Address()
	payload, err := oracle.EncodeSports(1, 0, market.Yes)
	require.NoError(t, err)

	tests := []struct {
		name string
		op   string
		from common.Address
		args any
		want int
	}{
		{"unknown-op", "market.explode", trader, nil, http.StatusNotFound},
		{"missing-sender", "market.close", common.Address{}, map[string]any{"market": m}, http.StatusBadRequest},
		{"malformed-args", "market.buy", trader, map[string]any{"market": "0x12"}, http.StatusBadRequest},
		{"missing-shares", "market.buy", trader, map[string]any{"market": m}, http.StatusBadRequest},
		{"unknown-market", "market.close", trader, map[string]any{"market": trader}, http.StatusNotFound},
		{"before-trading", "market.buy", trader,
			map[string]any{"market": m, "outcome": 0, "shares": fixed.Units(1)}, http.StatusConflict},
		{"close-too-early", "market.close", trader, map[string]any{"market": m}, http.StatusConflict},
		{"not-a-reporter", "oracle.propose", trader,
			map[string]any{"kind": "binary", "market_id": f.m.MarketID(), "payload": hexutil.Encode(payload)},
			http.StatusForbidden},
		{"unknown-oracle", "oracle.finalize", trader,
			map[string]any{"kind": "lottery", "market_id": f.m.MarketID()}, http.StatusBadRequest},
		{"arbitrate-without-value", "oracle.arbitrate", admin,
			map[string]any{"kind": "binary", "market_id": f.m.MarketID()}, http.StatusBadRequest},
		{"not-owner", "fees.claim-protocol", trader, nil, http.StatusForbidden},
		{"not-curator", "curation.set-status", trader,
			map[string]any{"market": m, "status": "flagged"}, http.StatusForbidden},
		{"bad-status", "curation.set-status", trader,
			map[string]any{"market": m, "status": "burned"}, http.StatusUnprocessableEntity},
		{"create-unknown-kind", "market.create", creator, map[string]any{"kind": "lottery"}, http.StatusBadRequest},
		{"create-invalid-params", "market.create", creator, map[string]any{"kind": "binary"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.post(t, tt.op, tt.from, nil, tt.args, nil), tt.name)
	}

	assert.Equal(t, http.StatusBadRequest, f.postRaw(t, "market.close", []byte("{"), nil))

	// Rejected transactions leave no trace.
	var stats map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/markets/"+m.Hex(), &stats))
	assert.Equal(t, "open", stats["stats"].(map[string]any)["state"])
}
