package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// TokensDeployed is emitted once per market when its token set is created.
type TokensDeployed struct {
	Market   common.Address   `json:"market"`
	Outcomes []common.Address `json:"outcomes"`
	LP       common.Address   `json:"lp"`
}

func (TokensDeployed) EventName() string { return "TokensDeployed" }

// DeployerSet is emitted when the owner authorises or revokes a market factory.
type DeployerSet struct {
	Deployer common.Address `json:"deployer"`
	Allowed  bool           `json:"allowed"`
}

func (DeployerSet) EventName() string { return "DeployerSet" }

// Set is the token set owned by one market.
type Set struct {
	Market   common.Address
	Outcomes []*Claim
	LP       *Claim
}

// Factory deploys outcome and LP tokens for markets.
type Factory struct {
	address     common.Address
	owner       common.Address
	deployers   map[common.Address]bool
	deployments map[common.Address]*Set
	logger      *zap.Logger
}

// NewFactory deploys a token factory owned by the transaction sender.
func NewFactory(tx *ledger.Tx, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		address:     tx.Deploy(tx.Sender()),
		owner:       tx.Sender(),
		deployers:   make(map[common.Address]bool),
		deployments: make(map[common.Address]*Set),
		logger:      logger,
	}
}

// Address returns the factory contract address.
func (f *Factory) Address() common.Address { return f.address }

// SetDeployer authorises a market factory to deploy token sets. Owner only.
func (f *Factory) SetDeployer(tx *ledger.Tx, deployer common.Address, allowed bool) error {
	if tx.Sender() != f.owner {
		return types.ErrNotOwner
	}
	ledger.SetKey(tx, f.deployers, deployer, allowed)
	tx.Emit(f.address, DeployerSet{Deployer: deployer, Allowed: allowed})
	return nil
}

// Deploy creates one outcome token per label plus an LP token, all owned by market.
func (f *Factory) Deploy(tx *ledger.Tx, market common.Address, marketKey string, labels []string) (*Set, error) {
	if !f.deployers[tx.Sender()] {
		return nil, types.ErrNotAuthorized
	}
	if market == (common.Address{}) {
		return nil, types.ErrZeroAddress
	}
	if _, exists := f.deployments[market]; exists {
		return nil, fmt.Errorf("tokens for %s: %w", market.Hex(), types.ErrMarketExists)
	}

	set := &Set{Market: market, Outcomes: make([]*Claim, 0, len(labels))}
	addrs := make([]common.Address, 0, len(labels))
	for i, label := range labels {
		claim := &Claim{
			ERC20: newERC20(
				tx.Deploy(f.address),
				fmt.Sprintf("%s: %s", marketKey, label),
				symbolFor(label, marketKey),
			),
			kind:  KindOutcome,
			owner: market,
			index: i,
		}
		set.Outcomes = append(set.Outcomes, claim)
		addrs = append(addrs, claim.address)
	}

	set.LP = &Claim{
		ERC20: newERC20(tx.Deploy(f.address), marketKey+": LP", symbolFor("LP", marketKey)),
		kind:  KindLP,
		owner: market,
		index: -1,
	}

	ledger.SetKey(tx, f.deployments, market, set)
	tx.Emit(f.address, TokensDeployed{Market: market, Outcomes: addrs, LP: set.LP.address})

	tx.AfterCommit(func() {
		f.logger.Debug("market-tokens-deployed",
			zap.String("market", market.Hex()),
			zap.Int("outcome-count", len(labels)))
	})

	return set, nil
}

// Tokens returns the token set deployed for market.
func (f *Factory) Tokens(market common.Address) (*Set, bool) {
	set, ok := f.deployments[market]
	return set, ok
}

func symbolFor(label string, marketKey string) string {
	key := strings.ToUpper(marketKey)
	if len(key) > 12 {
		key = key[:12]
	}
	return strings.ToUpper(strings.ReplaceAll(label, " ", "_")) + "-" + key
}
