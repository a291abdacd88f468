// Package curation gates markets behind a council-managed review status.
// Factories register every market they create; curators move markets between
// Pending, Approved and Flagged. Markets only trade while Approved.
package curation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

// Status is the review status of a market.
type Status uint8

const (
	StatusNone Status = iota
	StatusPending
	StatusApproved
	StatusFlagged
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusFlagged:
		return "flagged"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String for the settable statuses.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "flagged":
		return StatusFlagged, nil
	default:
		return StatusNone, fmt.Errorf("curation status %q: %w", s, types.ErrInvalidParams)
	}
}

// Config holds curation registry configuration.
type Config struct {
	// AutoApprove registers new markets as Approved instead of Pending.
	AutoApprove bool
	Logger      *zap.Logger
}

// Registry tracks the review status of every registered market.
type Registry struct {
	address     common.Address
	council     common.Address
	autoApprove bool
	logger      *zap.Logger

	curators  map[common.Address]bool
	factories map[common.Address]bool
	statuses  map[common.Address]Status
	markets   []common.Address
}

// New deploys a registry whose council is the transaction sender.
func New(tx *ledger.Tx, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		address:     tx.Deploy(tx.Sender()),
		council:     tx.Sender(),
		autoApprove: cfg.AutoApprove,
		logger:      logger,
		curators:    map[common.Address]bool{tx.Sender(): true},
		factories:   make(map[common.Address]bool),
		statuses:    make(map[common.Address]Status),
	}
}

func (r *Registry) Address() common.Address { return r.address }
func (r *Registry) Council() common.Address { return r.council }

// IsCurator reports whether who may change market statuses.
func (r *Registry) IsCurator(who common.Address) bool { return r.curators[who] }

// SetCurator grants or revokes curator rights. Council only.
func (r *Registry) SetCurator(tx *ledger.Tx, curator common.Address, allowed bool) error {
	if tx.Sender() != r.council {
		return types.ErrNotCouncil
	}
	if curator == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, r.curators, curator, allowed)
	tx.Emit(r.address, CuratorSet{Curator: curator, Allowed: allowed})
	return nil
}

// SetFactory authorises or revokes a market factory. Council only.
func (r *Registry) SetFactory(tx *ledger.Tx, factory common.Address, allowed bool) error {
	if tx.Sender() != r.council {
		return types.ErrNotCouncil
	}
	if factory == (common.Address{}) {
		return types.ErrZeroAddress
	}
	ledger.SetKey(tx, r.factories, factory, allowed)
	tx.Emit(r.address, CurationFactorySet{Factory: factory, Allowed: allowed})
	return nil
}

// Register records a newly created market. Authorised factories only.
func (r *Registry) Register(tx *ledger.Tx, market common.Address) error {
	if !r.factories[tx.Sender()] {
		return types.ErrNotAuthorized
	}
	if market == (common.Address{}) {
		return types.ErrZeroAddress
	}
	if r.statuses[market] != StatusNone {
		return fmt.Errorf("register %s: %w", market.Hex(), types.ErrMarketExists)
	}

	initial := StatusPending
	if r.autoApprove {
		initial = StatusApproved
	}
	ledger.Append(tx, &r.markets, market)
	r.transition(tx, market, initial)
	return nil
}

// SetStatus moves a registered market to status. Curators only.
func (r *Registry) SetStatus(tx *ledger.Tx, market common.Address, status Status) error {
	if !r.curators[tx.Sender()] {
		return types.ErrNotAuthorized
	}
	if status == StatusNone || status > StatusFlagged {
		return fmt.Errorf("set status %s: %w", status, types.ErrInvalidParams)
	}
	if r.statuses[market] == StatusNone {
		return fmt.Errorf("market %s: %w", market.Hex(), types.ErrUnknownMarket)
	}
	if r.statuses[market] == status {
		return nil
	}
	r.transition(tx, market, status)
	return nil
}

func (r *Registry) transition(tx *ledger.Tx, market common.Address, to Status) {
	from := r.statuses[market]
	by := tx.Sender()
	ledger.SetKey(tx, r.statuses, market, to)
	tx.Emit(r.address, StatusChanged{Market: market, From: from, To: to, By: by})
	tx.AfterCommit(func() {
		StatusChangesTotal.WithLabelValues(to.String()).Inc()
		r.logger.Info("curation-status-changed",
			zap.String("market", market.Hex()),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.String("by", by.Hex()))
	})
}

// StatusOf returns the status of market, StatusNone if unregistered.
func (r *Registry) StatusOf(market common.Address) Status {
	return r.statuses[market]
}

// IsApproved reports whether market may trade.
func (r *Registry) IsApproved(market common.Address) bool {
	return r.statuses[market] == StatusApproved
}

// Markets returns registered markets with the given status in registration
// order. StatusNone returns every market.
func (r *Registry) Markets(status Status) []common.Address {
	out := make([]common.Address, 0, len(r.markets))
	for _, m := range r.markets {
		if status == StatusNone || r.statuses[m] == status {
			out = append(out, m)
		}
	}
	return out
}

// Counts returns the number of markets per status.
func (r *Registry) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, s := range r.statuses {
		out[s]++
	}
	return out
}
