package amm

import (
	"math/rand/v2"
	"testing"

	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeros(n int) []*uint256.Int {
	q := make([]*uint256.Int, n)
	for i := range q {
		q[i] = fixed.Zero()
	}
	return q
}

func sum(xs []*uint256.Int) *uint256.Int {
	total := fixed.Zero()
	for _, x := range xs {
		total = new(uint256.Int).Add(total, x)
	}
	return total
}

func TestDepthForSubsidy_CoversMaxLoss(t *testing.T) {
	t.Parallel()

	for _, n := range []int{2, 3, 5, 32} {
		subsidy := fixed.Units(1000)
		curve, err := NewFromSubsidy(subsidy, n)
		require.NoError(t, err)

		loss, err := curve.MaxLoss()
		require.NoError(t, err)
		assert.True(t, loss.Cmp(subsidy) <= 0, "n=%d: max loss %s exceeds subsidy", n, loss.Dec())

		// Cost at the origin is exactly the max loss.
		c, err := curve.Cost(zeros(n))
		require.NoError(t, err)
		assert.Equal(t, loss, c)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(fixed.One(), 1)
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)

	_, err = New(fixed.One(), MaxOutcomes+1)
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)

	_, err = New(fixed.Zero(), 2)
	assert.ErrorIs(t, err, types.ErrDepthNotInitialized)

	_, err = DepthForSubsidy(fixed.Zero(), 2)
	assert.ErrorIs(t, err, types.ErrLiquidityRequired)
}

func TestPrices_UniformAtOrigin(t *testing.T) {
	t.Parallel()

	curve, err := NewFromSubsidy(fixed.Units(1000), 2)
	require.NoError(t, err)

	prices, err := curve.Prices(zeros(2))
	require.NoError(t, err)
	half := uint256.NewInt(500_000_000_000_000_000)
	assert.Equal(t, half, prices[0])
	assert.Equal(t, half, prices[1])
}

func TestPrice_MonotonicInBinaryMarket(t *testing.T) {
	t.Parallel()

	curve, err := NewFromSubsidy(fixed.Units(1000), 2)
	require.NoError(t, err)

	q := zeros(2)
	prevYes, err := curve.Price(q, 0)
	require.NoError(t, err)
	prevNo, err := curve.Price(q, 1)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		q[0] = new(uint256.Int).Add(q[0], fixed.Units(25))

		yes, err := curve.Price(q, 0)
		require.NoError(t, err)
		no, err := curve.Price(q, 1)
		require.NoError(t, err)

		assert.True(t, yes.Gt(prevYes), "step %d: yes price did not rise", i)
		assert.True(t, no.Lt(prevNo), "step %d: no price did not fall", i)
		prevYes, prevNo = yes, no
	}
}

func TestPrices_SumBoundedForMulti(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	curve, err := NewFromSubsidy(fixed.Units(500), 6)
	require.NoError(t, err)

	q := zeros(6)
	for step := 0; step < 50; step++ {
		i := rng.IntN(6)
		q[i] = new(uint256.Int).Add(q[i], fixed.Units(rng.Uint64N(200)+1))

		prices, err := curve.Prices(q)
		require.NoError(t, err)

		total := sum(prices)
		assert.True(t, total.Cmp(fixed.One()) <= 0, "step %d: prices sum above one: %s", step, total.Dec())
		// Flooring loses at most one wei per outcome.
		floor := new(uint256.Int).Sub(fixed.One(), uint256.NewInt(6))
		assert.True(t, total.Cmp(floor) >= 0, "step %d: prices sum too low: %s", step, total.Dec())
	}
}

func TestBuyCost_BoundedByPrices(t *testing.T) {
	t.Parallel()

	curve, err := NewFromSubsidy(fixed.Units(1000), 2)
	require.NoError(t, err)

	q := []*uint256.Int{fixed.Units(120), fixed.Units(40)}
	shares := fixed.Units(50)

	cost, err := curve.BuyCost(q, 1, shares)
	require.NoError(t, err)

	// A share never costs more than one unit of collateral.
	assert.True(t, cost.Lt(shares))

	// Convexity: the cost is at least the marginal price before the trade.
	before, err := curve.Price(q, 1)
	require.NoError(t, err)
	lower, err := fixed.MulDivDown(shares, before, fixed.One())
	require.NoError(t, err)
	assert.True(t, cost.Gt(lower))
}

func TestBuyCost_SplittingNeverCheaper(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	curve, err := NewFromSubsidy(fixed.Units(100), 3)
	require.NoError(t, err)

	for trial := 0; trial < 25; trial++ {
		outcome := rng.IntN(3)
		a := uint256.NewInt(rng.Uint64N(1_000_000_000_000_000_000) + 1)
		b := uint256.NewInt(rng.Uint64N(1_000_000_000_000_000_000) + 1)

		whole, err := curve.BuyCost(zeros(3), outcome, new(uint256.Int).Add(a, b))
		require.NoError(t, err)

		first, err := curve.BuyCost(zeros(3), outcome, a)
		require.NoError(t, err)
		q := zeros(3)
		q[outcome] = a
		second, err := curve.BuyCost(q, outcome, b)
		require.NoError(t, err)

		split := new(uint256.Int).Add(first, second)
		assert.True(t, split.Cmp(whole) >= 0, "trial %d: split %s cheaper than whole %s", trial, split.Dec(), whole.Dec())
	}
}

func TestBuyCost_SubsidyKeepsCurveSolvent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 99))
	subsidy := fixed.Units(1000)
	curve, err := NewFromSubsidy(subsidy, 2)
	require.NoError(t, err)

	q := zeros(2)
	held := new(uint256.Int).Set(subsidy)
	for step := 0; step < 100; step++ {
		outcome := rng.IntN(2)
		shares := new(uint256.Int).Add(fixed.Units(rng.Uint64N(300)), uint256.NewInt(rng.Uint64N(1_000_000)+1))

		cost, err := curve.BuyCost(q, outcome, shares)
		require.NoError(t, err)
		held = new(uint256.Int).Add(held, cost)
		q[outcome] = new(uint256.Int).Add(q[outcome], shares)

		// Whatever resolves, the collateral covers every winning share.
		worst := fixed.Max(q[0], q[1])
		require.True(t, held.Cmp(worst) >= 0, "step %d: held %s < liability %s", step, held.Dec(), worst.Dec())

		c, err := curve.Cost(q)
		require.NoError(t, err)
		require.True(t, held.Cmp(c) >= 0, "step %d: held %s below curve cost %s", step, held.Dec(), c.Dec())
	}
}

func TestBuyCost_Errors(t *testing.T) {
	t.Parallel()

	curve, err := NewFromSubsidy(fixed.Units(10), 2)
	require.NoError(t, err)

	_, err = curve.BuyCost(zeros(2), 0, fixed.Zero())
	assert.ErrorIs(t, err, types.ErrZeroAmount)

	_, err = curve.BuyCost(zeros(2), 2, fixed.One())
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)

	_, err = curve.BuyCost(zeros(3), 0, fixed.One())
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)

	_, err = curve.Price(zeros(2), -1)
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)
}

func TestPrices_ExtremeImbalanceDoesNotUnderflow(t *testing.T) {
	t.Parallel()

	curve, err := New(fixed.One(), 2)
	require.NoError(t, err)

	q := []*uint256.Int{fixed.Units(1_000), fixed.Zero()}
	prices, err := curve.Prices(q)
	require.NoError(t, err)
	assert.True(t, prices[1].IsZero())
	assert.Equal(t, fixed.One(), prices[0])

	cost, err := curve.BuyCost(q, 1, fixed.One())
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1), cost)
}
