package factory_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000ad000")
	creator = common.HexToAddress("0x00000000000000000000000000000000000c4ea7")
	other   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func setup(t *testing.T, minLiquidity *uint256.Int) *protocol.Protocol {
	t.Helper()

	logger := zaptest.NewLogger(t)
	chain := ledger.New(ledger.Config{StartTime: 1_700_000_000, Logger: logger})
	p, err := protocol.Deploy(chain, protocol.Config{Admin: admin, MinLiquidity: minLiquidity, Logger: logger})
	require.NoError(t, err)
	chain.Fund(creator, fixed.Units(1_000_000))
	chain.Fund(other, fixed.Units(1_000_000))
	return p
}

func params(p *protocol.Protocol, key string) factory.CreateParams {
	now := p.Chain.Now()
	return factory.CreateParams{
		Question:           "Will it rain tomorrow?",
		MetadataURI:        "ipfs://question",
		MarketKey:          key,
		FeeBps:             200,
		StartTime:          now + 60,
		EndTime:            now + 3_600,
		ResolutionDeadline: now + 7_200,
	}
}

func createBinary(p *protocol.Protocol, from common.Address, value *uint256.Int, cp factory.CreateParams) (*market.Binary, error) {
	var m *market.Binary
	err := p.Chain.ExecuteWithValue(from, p.Binary.Address(), value, "factory.create", func(tx *ledger.Tx) error {
		var err error
		m, err = p.Binary.Create(tx, cp)
		return err
	})
	return m, err
}

func TestBinaryCreate_WiresEverything(t *testing.T) {
	t.Parallel()

	p := setup(t, nil)
	nativeBefore := p.Chain.NativeBalance(creator)

	m, err := createBinary(p, creator, fixed.Units(250), params(p, "rain-tomorrow"))
	require.NoError(t, err)

	assert.Equal(t, market.StateOpen, m.State())
	assert.Equal(t, creator, m.Creator())
	assert.Equal(t, []string{"Yes", "No"}, m.OutcomeLabels())
	assert.Equal(t, uint64(200), m.FeeBps())

	// Native value was wrapped and deposited; LP tokens went to the creator.
	assert.Equal(t, new(uint256.Int).Sub(nativeBefore, fixed.Units(250)), p.Chain.NativeBalance(creator))
	assert.Equal(t, fixed.Units(250), p.Chain.NativeBalance(p.Collateral.Address()))
	assert.Equal(t, fixed.Units(250), m.LPToken().BalanceOf(creator))
	assert.True(t, m.LPToken().BalanceOf(p.Binary.Address()).IsZero())
	assert.Equal(t, fixed.Units(250), p.Collateral.BalanceOf(m.Address()))
	require.NoError(t, m.CheckSolvency())

	got, ok := p.Router.CreatorOf(m.Address())
	require.True(t, ok)
	assert.Equal(t, creator, got)

	bound, ok := p.Oracle(market.KindBinary).MarketOf(m.MarketID())
	require.True(t, ok)
	assert.Equal(t, m.Address(), bound)

	entry, ok := p.Registry.ByMarketID(m.MarketID())
	require.True(t, ok)
	assert.Equal(t, uint64(0), entry.ID)
	assert.Equal(t, market.KindBinary, entry.Kind)
	assert.Equal(t, "rain-tomorrow", entry.Key)
	assert.Equal(t, p.Binary.Address(), entry.Factory)

	prices, err := m.Prices()
	require.NoError(t, err)
	assert.Equal(t, "0.5", fixed.Format(prices[market.Yes]))

	logs := p.Chain.Logs(0, 1_000)
	last := logs[len(logs)-1]
	created, ok := last.Event.(factory.MarketCreated)
	require.True(t, ok)
	assert.Equal(t, m.Address(), created.Market)
	assert.Equal(t, fixed.Units(250), created.InitialLiquidity)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	p := setup(t, fixed.Units(10))

	tests := []struct {
		name   string
		value  *uint256.Int
		mutate func(*factory.CreateParams)
		want   error
	}{
		{"no-question", fixed.Units(100), func(c *factory.CreateParams) { c.Question = "" }, types.ErrInvalidParams},
		{"no-key", fixed.Units(100), func(c *factory.CreateParams) { c.MarketKey = "" }, types.ErrInvalidParams},
		{"fee-too-high", fixed.Units(100), func(c *factory.CreateParams) { c.FeeBps = 10_001 }, types.ErrInvalidParams},
		{"end-before-start", fixed.Units(100), func(c *factory.CreateParams) { c.EndTime = c.StartTime }, types.ErrInvalidTimeRange},
		{"deadline-before-end", fixed.Units(100), func(c *factory.CreateParams) { c.ResolutionDeadline = c.EndTime }, types.ErrInvalidTimeRange},
		{"end-in-past", fixed.Units(100), func(c *factory.CreateParams) {
			c.StartTime, c.EndTime = 1, 2
		}, types.ErrInvalidTimeRange},
		{"three-outcomes", fixed.Units(100), func(c *factory.CreateParams) { c.Outcomes = []string{"a", "b", "c"} }, types.ErrInvalidOutcome},
		{"blank-label", fixed.Units(100), func(c *factory.CreateParams) { c.Outcomes = []string{"Yes", ""} }, types.ErrInvalidParams},
		{"no-liquidity", nil, func(*factory.CreateParams) {}, types.ErrLiquidityRequired},
		{"below-minimum", fixed.Units(9), func(*factory.CreateParams) {}, types.ErrLiquidityRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := params(p, "validation-"+tt.name)
			tt.mutate(&cp)
			before := p.Chain.NativeBalance(creator)

			_, err := createBinary(p, creator, tt.value, cp)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, p.Chain.NativeBalance(creator))
		})
	}
	assert.Equal(t, 0, p.Registry.Len())
}

func TestCreate_DuplicateKeyReverts(t *testing.T) {
	t.Parallel()

	p := setup(t, nil)
	_, err := createBinary(p, creator, fixed.Units(100), params(p, "same-key"))
	require.NoError(t, err)

	_, err = createBinary(p, other, fixed.Units(100), params(p, "same-key"))
	assert.ErrorIs(t, err, types.ErrMarketExists)
	assert.Equal(t, 1, p.Registry.Len())
	assert.Equal(t, fixed.Units(1_000_000), p.Chain.NativeBalance(other))
}

func TestMultiAndScalarCreate(t *testing.T) {
	t.Parallel()

	p := setup(t, nil)

	cp := params(p, "election")
	cp.Outcomes = []string{"Alice", "Bob", "Carol"}
	var multi *market.Multi
	require.NoError(t, p.Chain.ExecuteWithValue(creator, p.Multi.Address(), fixed.Units(300), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			multi, err = p.Multi.Create(tx, cp)
			return err
		}))
	assert.Len(t, multi.OutcomeTokens(), 3)
	assert.Equal(t, market.KindMulti, multi.Kind())

	cp = params(p, "eth-price")
	var scalar *market.Scalar
	err := p.Chain.ExecuteWithValue(creator, p.Scalar.Address(), fixed.Units(300), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			scalar, err = p.Scalar.Create(tx, cp)
			return err
		})
	assert.ErrorIs(t, err, types.ErrInvalidParams)

	cp.Lower, cp.Upper = fixed.Units(1_000), fixed.Units(5_000)
	require.NoError(t, p.Chain.ExecuteWithValue(creator, p.Scalar.Address(), fixed.Units(300), "factory.create",
		func(tx *ledger.Tx) error {
			var err error
			scalar, err = p.Scalar.Create(tx, cp)
			return err
		}))
	lower, upper := scalar.Bounds()
	assert.Equal(t, fixed.Units(1_000), lower)
	assert.Equal(t, fixed.Units(5_000), upper)
	assert.Equal(t, []string{"Long", "Short"}, scalar.OutcomeLabels())

	cp = params(p, "single")
	cp.Outcomes = []string{"Only"}
	err = p.Chain.ExecuteWithValue(creator, p.Multi.Address(), fixed.Units(300), "factory.create",
		func(tx *ledger.Tx) error {
			_, err := p.Multi.Create(tx, cp)
			return err
		})
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)
}

func TestRegistry_Paging(t *testing.T) {
	t.Parallel()

	p := setup(t, nil)
	for i, who := range []common.Address{creator, other, creator, other, creator} {
		_, err := createBinary(p, who, fixed.Units(10), params(p, "page-"+string(rune('a'+i))))
		require.NoError(t, err)
	}
	cp := params(p, "page-multi")
	cp.Outcomes = []string{"x", "y", "z"}
	require.NoError(t, p.Chain.ExecuteWithValue(other, p.Multi.Address(), fixed.Units(10), "factory.create",
		func(tx *ledger.Tx) error {
			_, err := p.Multi.Create(tx, cp)
			return err
		}))

	assert.Equal(t, 6, p.Registry.Len())

	all := p.Registry.Page(0, 100, factory.Filter{})
	require.Len(t, all, 6)
	for i, e := range all {
		assert.Equal(t, uint64(i), e.ID)
	}

	mine := p.Registry.Page(1, 10, factory.Filter{Creator: creator})
	require.Len(t, mine, 2)
	assert.Equal(t, "page-c", mine[0].Key)
	assert.Equal(t, "page-e", mine[1].Key)

	multis := p.Registry.Page(0, 10, factory.Filter{Kind: market.KindMulti})
	require.Len(t, multis, 1)
	assert.Equal(t, "page-multi", multis[0].Key)

	assert.Len(t, p.Registry.Page(0, 2, factory.Filter{}), 2)
	assert.Empty(t, p.Registry.Page(10, 5, factory.Filter{}))
	assert.Empty(t, p.Registry.Page(0, 0, factory.Filter{}))

	e, ok := p.Registry.Get(3)
	require.True(t, ok)
	assert.Equal(t, "page-d", e.Key)
	_, ok = p.Registry.Get(6)
	assert.False(t, ok)
}
