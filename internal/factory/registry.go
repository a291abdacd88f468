package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
)

// Entry is one created market.
type Entry struct {
	ID        uint64          `json:"id"`
	Address   common.Address  `json:"address"`
	MarketID  common.Hash     `json:"market_id"`
	Kind      market.Kind     `json:"kind"`
	Creator   common.Address  `json:"creator"`
	Key       string          `json:"key"`
	Oracle    common.Address  `json:"oracle"`
	Factory   common.Address  `json:"factory"`
	CreatedAt uint64          `json:"created_at"`
	Contract  market.Contract `json:"-"`
}

// Filter narrows Page results. Zero fields match everything.
type Filter struct {
	Kind    market.Kind
	Creator common.Address
}

func (f Filter) match(e *Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Creator != (common.Address{}) && e.Creator != f.Creator {
		return false
	}
	return true
}

// Registry is the append-only list of markets created by every factory.
// IDs are positions in the list.
type Registry struct {
	entries    []*Entry
	byAddress  map[common.Address]uint64
	byMarketID map[common.Hash]uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddress:  make(map[common.Address]uint64),
		byMarketID: make(map[common.Hash]uint64),
	}
}

func (r *Registry) add(tx *ledger.Tx, e Entry) *Entry {
	e.ID = uint64(len(r.entries))
	entry := &e
	ledger.Append(tx, &r.entries, entry)
	ledger.SetKey(tx, r.byAddress, e.Address, e.ID)
	ledger.SetKey(tx, r.byMarketID, e.MarketID, e.ID)
	return entry
}

// Len returns the number of markets.
func (r *Registry) Len() int { return len(r.entries) }

// Get returns the market with the given id.
func (r *Registry) Get(id uint64) (Entry, bool) {
	if id >= uint64(len(r.entries)) {
		return Entry{}, false
	}
	return *r.entries[id], true
}

// ByAddress looks a market up by contract address.
func (r *Registry) ByAddress(addr common.Address) (Entry, bool) {
	id, ok := r.byAddress[addr]
	if !ok {
		return Entry{}, false
	}
	return *r.entries[id], true
}

// ByMarketID looks a market up by oracle market id.
func (r *Registry) ByMarketID(marketID common.Hash) (Entry, bool) {
	id, ok := r.byMarketID[marketID]
	if !ok {
		return Entry{}, false
	}
	return *r.entries[id], true
}

// Page returns up to limit entries matching filter, skipping the first offset
// matches, in creation order.
func (r *Registry) Page(offset, limit int, filter Filter) []Entry {
	if limit <= 0 || offset < 0 {
		return nil
	}
	out := make([]Entry, 0, min(limit, len(r.entries)))
	skipped := 0
	for _, e := range r.entries {
		if !filter.match(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out
}
