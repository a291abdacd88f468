package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	admin  = common.HexToAddress("0xAD00000000000000000000000000000000000001")
	alice  = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob    = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
	market = common.HexToAddress("0x3A4E000000000000000000000000000000000003")
)

func setupCollateral(t *testing.T) (*ledger.Chain, *Collateral) {
	t.Helper()

	chain := ledger.New(ledger.Config{StartTime: 1_000, Logger: zaptest.NewLogger(t)})
	chain.Fund(alice, fixed.Units(100))
	chain.Fund(bob, fixed.Units(100))

	var c *Collateral
	require.NoError(t, chain.Execute(admin, "collateral.deploy", func(tx *ledger.Tx) error {
		c = NewCollateral(tx, "Wrapped Ether", "WETH")
		return nil
	}))
	return chain, c
}

func deposit(t *testing.T, chain *ledger.Chain, c *Collateral, who common.Address, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, chain.ExecuteWithValue(who, c.Address(), amount, "collateral.deposit", c.Deposit))
}

func TestCollateral_DepositWithdrawIsOneToOne(t *testing.T) {
	t.Parallel()

	chain, c := setupCollateral(t)
	deposit(t, chain, c, alice, fixed.Units(10))

	assert.Equal(t, fixed.Units(10), c.BalanceOf(alice))
	assert.Equal(t, fixed.Units(10), c.TotalSupply())
	assert.Equal(t, fixed.Units(10), chain.NativeBalance(c.Address()))
	assert.Equal(t, fixed.Units(90), chain.NativeBalance(alice))

	require.NoError(t, chain.Execute(alice, "collateral.withdraw", func(tx *ledger.Tx) error {
		return c.Withdraw(tx, fixed.Units(4))
	}))

	assert.Equal(t, fixed.Units(6), c.BalanceOf(alice))
	assert.Equal(t, fixed.Units(6), chain.NativeBalance(c.Address()))
	assert.Equal(t, fixed.Units(94), chain.NativeBalance(alice))
}

func TestCollateral_Errors(t *testing.T) {
	t.Parallel()

	chain, c := setupCollateral(t)
	deposit(t, chain, c, alice, fixed.Units(1))

	tests := []struct {
		name   string
		sender common.Address
		fn     func(tx *ledger.Tx) error
		want   error
	}{
		{
			name:   "deposit-without-value",
			sender: alice,
			fn:     c.Deposit,
			want:   types.ErrZeroAmount,
		},
		{
			name:   "withdraw-more-than-balance",
			sender: alice,
			fn:     func(tx *ledger.Tx) error { return c.Withdraw(tx, fixed.Units(2)) },
			want:   types.ErrInsufficientBalance,
		},
		{
			name:   "withdraw-zero",
			sender: alice,
			fn:     func(tx *ledger.Tx) error { return c.Withdraw(tx, fixed.Zero()) },
			want:   types.ErrZeroAmount,
		},
		{
			name:   "set-minter-not-owner",
			sender: alice,
			fn:     func(tx *ledger.Tx) error { return c.SetMinter(tx, bob, true) },
			want:   types.ErrNotOwner,
		},
		{
			name:   "mint-not-minter",
			sender: bob,
			fn:     func(tx *ledger.Tx) error { return c.Mint(tx, bob, fixed.One()) },
			want:   types.ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chain.Execute(tt.sender, "collateral."+tt.name, tt.fn)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, fixed.Units(1), c.BalanceOf(alice))
}

func TestCollateral_MinterCanMint(t *testing.T) {
	t.Parallel()

	chain, c := setupCollateral(t)
	require.NoError(t, chain.Execute(admin, "collateral.set-minter", func(tx *ledger.Tx) error {
		return c.SetMinter(tx, bob, true)
	}))
	assert.True(t, c.IsMinter(bob))

	require.NoError(t, chain.Execute(bob, "collateral.mint", func(tx *ledger.Tx) error {
		return c.Mint(tx, alice, fixed.Units(3))
	}))
	assert.Equal(t, fixed.Units(3), c.BalanceOf(alice))
}

func TestERC20_AllowanceFlow(t *testing.T) {
	t.Parallel()

	chain, c := setupCollateral(t)
	deposit(t, chain, c, alice, fixed.Units(10))

	require.NoError(t, chain.Execute(alice, "collateral.approve", func(tx *ledger.Tx) error {
		return c.Approve(tx, bob, fixed.Units(3))
	}))

	err := chain.Execute(bob, "collateral.transfer-from", func(tx *ledger.Tx) error {
		return c.TransferFrom(tx, alice, bob, fixed.Units(4))
	})
	assert.ErrorIs(t, err, types.ErrInsufficientAllowance)

	require.NoError(t, chain.Execute(bob, "collateral.transfer-from", func(tx *ledger.Tx) error {
		return c.TransferFrom(tx, alice, bob, fixed.Units(2))
	}))
	assert.Equal(t, fixed.Units(1), c.Allowance(alice, bob))
	assert.Equal(t, fixed.Units(8), c.BalanceOf(alice))
	assert.Equal(t, fixed.Units(2), c.BalanceOf(bob))

	// Max allowance is sticky.
	require.NoError(t, chain.Execute(alice, "collateral.approve", func(tx *ledger.Tx) error {
		return c.Approve(tx, bob, MaxAllowance())
	}))
	require.NoError(t, chain.Execute(bob, "collateral.transfer-from", func(tx *ledger.Tx) error {
		return c.TransferFrom(tx, alice, bob, fixed.Units(5))
	}))
	assert.Equal(t, MaxAllowance(), c.Allowance(alice, bob))
}

func TestERC20_TransferRevertLeavesBalances(t *testing.T) {
	t.Parallel()

	chain, c := setupCollateral(t)
	deposit(t, chain, c, alice, fixed.Units(5))

	err := chain.Execute(alice, "collateral.transfer", func(tx *ledger.Tx) error {
		if err := c.Transfer(tx, bob, fixed.Units(2)); err != nil {
			return err
		}
		return c.Transfer(tx, common.Address{}, fixed.Units(1))
	})
	assert.ErrorIs(t, err, types.ErrZeroAddress)
	assert.Equal(t, fixed.Units(5), c.BalanceOf(alice))
	assert.True(t, c.BalanceOf(bob).IsZero())
}

func TestFactory_DeployTokenSet(t *testing.T) {
	t.Parallel()

	chain := ledger.New(ledger.Config{StartTime: 1_000, Logger: zaptest.NewLogger(t)})
	var f *Factory
	require.NoError(t, chain.Execute(admin, "tokens.deploy-factory", func(tx *ledger.Tx) error {
		f = NewFactory(tx, zaptest.NewLogger(t))
		return nil
	}))

	deploy := func(tx *ledger.Tx) error {
		_, err := f.Deploy(tx, market, "eth-4k", []string{"Yes", "No"})
		return err
	}

	err := chain.Execute(alice, "tokens.deploy", deploy)
	assert.ErrorIs(t, err, types.ErrNotAuthorized)

	require.NoError(t, chain.Execute(admin, "tokens.set-deployer", func(tx *ledger.Tx) error {
		return f.SetDeployer(tx, alice, true)
	}))
	require.NoError(t, chain.Execute(alice, "tokens.deploy", deploy))

	set, ok := f.Tokens(market)
	require.True(t, ok)
	require.Len(t, set.Outcomes, 2)
	assert.Equal(t, "YES-ETH-4K", set.Outcomes[0].Symbol())
	assert.Equal(t, "eth-4k: No", set.Outcomes[1].Name())
	assert.Equal(t, 1, set.Outcomes[1].OutcomeIndex())
	assert.Equal(t, KindOutcome, set.Outcomes[0].Kind())
	assert.Equal(t, KindLP, set.LP.Kind())
	assert.Equal(t, -1, set.LP.OutcomeIndex())
	assert.Equal(t, market, set.LP.Owner())
	assert.NotEqual(t, set.Outcomes[0].Address(), set.Outcomes[1].Address())

	err = chain.Execute(alice, "tokens.deploy", deploy)
	assert.ErrorIs(t, err, types.ErrMarketExists)
}

func TestClaim_OnlyOwnerMintsAndBurns(t *testing.T) {
	t.Parallel()

	chain := ledger.New(ledger.Config{StartTime: 1_000, Logger: zaptest.NewLogger(t)})
	var set *Set
	require.NoError(t, chain.Execute(admin, "tokens.setup", func(tx *ledger.Tx) error {
		f := NewFactory(tx, nil)
		if err := f.SetDeployer(tx, admin, true); err != nil {
			return err
		}
		var err error
		set, err = f.Deploy(tx, market, "m", []string{"A", "B", "C"})
		return err
	}))
	yes := set.Outcomes[0]

	err := chain.Execute(alice, "claim.mint", func(tx *ledger.Tx) error {
		return yes.Mint(tx, alice, fixed.One())
	})
	assert.ErrorIs(t, err, types.ErrNotOwner)

	require.NoError(t, chain.Execute(market, "claim.mint", func(tx *ledger.Tx) error {
		return yes.Mint(tx, alice, fixed.Units(2))
	}))
	assert.Equal(t, fixed.Units(2), yes.TotalSupply())

	err = chain.Execute(alice, "claim.burn", func(tx *ledger.Tx) error {
		return yes.Burn(tx, alice, fixed.One())
	})
	assert.ErrorIs(t, err, types.ErrNotOwner)

	require.NoError(t, chain.Execute(market, "claim.burn", func(tx *ledger.Tx) error {
		return yes.Burn(tx, alice, fixed.One())
	}))
	assert.Equal(t, fixed.One(), yes.BalanceOf(alice))
	assert.Equal(t, fixed.One(), yes.TotalSupply())
}
