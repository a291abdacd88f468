package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/mselser95/settlement-engine/internal/curation"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/pkg/cache"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// APIHandler serves views of the deployed protocol and accepts transactions.
// Every read runs inside chain.Read so it never observes a half-applied
// transaction.
type APIHandler struct {
	protocol *protocol.Protocol
	cache    cache.Cache
	cacheTTL time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAPIHandler creates an API handler. c may be nil.
func NewAPIHandler(p *protocol.Protocol, c cache.Cache, ttl time.Duration, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		protocol: p,
		cache:    c,
		cacheTTL: ttl,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes mounts the API under r.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/chain", h.HandleChain)
	r.Get("/markets", h.HandleMarkets)
	r.Get("/markets/{address}", h.HandleMarket)
	r.Get("/markets/{address}/quote", h.HandleQuote)
	r.Get("/fees/protocol", h.HandleProtocolFees)
	r.Get("/fees/creators/{address}", h.HandleCreatorFees)
	r.Get("/oracle/{kind}/{marketID}", h.HandleProposal)
	r.Get("/logs", h.HandleLogs)
	r.Post("/tx/{op}", h.HandleTx)
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChainResponse is the head of the ledger.
type ChainResponse struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"`
}

// MarketSummary is one row of the market listing.
type MarketSummary struct {
	factory.Entry
	Question string          `json:"question"`
	State    market.State    `json:"state"`
	Curation curation.Status `json:"curation"`
	Prices   []string        `json:"prices"`
}

// MarketDetail is the full view of one market.
type MarketDetail struct {
	Info     market.Info              `json:"info"`
	Stats    market.Stats             `json:"stats"`
	LP       market.LPStats           `json:"lp"`
	Fees     feerouter.MarketFeeStats `json:"fees"`
	Curation curation.Status          `json:"curation"`
	Height   uint64                   `json:"height"`
}

// ProposalResponse is the oracle record for one market.
type ProposalResponse struct {
	Proposal *oracle.Proposal `json:"proposal,omitempty"`
	Result   oracle.Result    `json:"result"`
}

// HandleChain handles GET /api/chain.
func (h *APIHandler) HandleChain(w http.ResponseWriter, _ *http.Request) {
	var resp ChainResponse
	h.protocol.Chain.ReadAt(func(now, height uint64) {
		resp.Time, resp.Height = now, height
	})
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleMarkets handles GET /api/markets?kind=&creator=&offset=&limit=.
func (h *APIHandler) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter factory.Filter
	if kind := q.Get("kind"); kind != "" {
		filter.Kind = market.Kind(kind)
		if h.protocol.Oracle(filter.Kind) == nil {
			h.writeError(w, "unknown market kind", http.StatusBadRequest)
			return
		}
	}
	if creator := q.Get("creator"); creator != "" {
		addr, ok := parseAddress(creator)
		if !ok {
			h.writeError(w, "invalid creator address", http.StatusBadRequest)
			return
		}
		filter.Creator = addr
	}

	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		h.writeError(w, "invalid offset", http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil || limit <= 0 {
		h.writeError(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	summaries := make([]MarketSummary, 0)
	var readErr error
	h.protocol.Chain.Read(func(uint64) {
		for _, e := range h.protocol.Registry.Page(offset, limit, filter) {
			prices, err := e.Contract.Prices()
			if err != nil {
				readErr = err
				return
			}
			formatted := make([]string, len(prices))
			for i, p := range prices {
				formatted[i] = fixed.Format(p)
			}
			summaries = append(summaries, MarketSummary{
				Entry:    e,
				Question: e.Contract.Info().Question,
				State:    e.Contract.State(),
				Curation: h.protocol.Curation.StatusOf(e.Address),
				Prices:   formatted,
			})
		}
	})
	if readErr != nil {
		h.logger.Error("list-markets-failed", zap.Error(readErr))
		h.writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summaries)
}

// HandleMarket handles GET /api/markets/{address}.
func (h *APIHandler) HandleMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid market address", http.StatusBadRequest)
		return
	}

	var (
		detail MarketDetail
		err    error
	)
	h.protocol.Chain.ReadAt(func(_, height uint64) {
		m, found := h.protocol.Market(addr)
		if !found {
			err = types.ErrUnknownMarket
			return
		}
		detail, err = cache.Snapshot(h.cache, "market/"+addr.Hex(), height, h.cacheTTL, func() (MarketDetail, error) {
			return h.marketDetail(m, height)
		})
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

func (h *APIHandler) marketDetail(m market.Contract, height uint64) (MarketDetail, error) {
	stats, err := m.GetMarketStats()
	if err != nil {
		return MarketDetail{}, err
	}
	lp, err := m.GetLPStats()
	if err != nil {
		return MarketDetail{}, err
	}
	return MarketDetail{
		Info:     m.Info(),
		Stats:    stats,
		LP:       lp,
		Fees:     h.protocol.Router.GetLPStats(m.Address()),
		Curation: h.protocol.Curation.StatusOf(m.Address()),
		Height:   height,
	}, nil
}

// HandleQuote handles GET /api/markets/{address}/quote?outcome=N&shares=D,
// where shares is a decimal amount of whole shares.
func (h *APIHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid market address", http.StatusBadRequest)
		return
	}
	outcome, err := intParam(r.URL.Query().Get("outcome"), -1)
	if err != nil || outcome < 0 {
		h.writeError(w, "invalid outcome", http.StatusBadRequest)
		return
	}
	shares, err := fixed.Parse(r.URL.Query().Get("shares"))
	if err != nil {
		h.writeError(w, "invalid shares", http.StatusBadRequest)
		return
	}

	var quote market.Quote
	h.protocol.Chain.Read(func(uint64) {
		m, found := h.protocol.Market(addr)
		if !found {
			err = types.ErrUnknownMarket
			return
		}
		quote, err = m.QuoteBuy(outcome, shares)
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandleProtocolFees handles GET /api/fees/protocol.
func (h *APIHandler) HandleProtocolFees(w http.ResponseWriter, _ *http.Request) {
	var stats feerouter.ProtocolStats
	h.protocol.Chain.Read(func(uint64) {
		stats = h.protocol.Router.GetProtocolStats()
	})
	h.writeJSON(w, http.StatusOK, stats)
}

// HandleCreatorFees handles GET /api/fees/creators/{address}.
func (h *APIHandler) HandleCreatorFees(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		h.writeError(w, "invalid creator address", http.StatusBadRequest)
		return
	}

	var stats feerouter.CreatorStats
	h.protocol.Chain.Read(func(uint64) {
		stats = h.protocol.Router.GetCreatorStats(addr)
	})
	h.writeJSON(w, http.StatusOK, stats)
}

// HandleProposal handles GET /api/oracle/{kind}/{marketID}.
func (h *APIHandler) HandleProposal(w http.ResponseWriter, r *http.Request) {
	adapter := h.protocol.Oracle(market.Kind(chi.URLParam(r, "kind")))
	if adapter == nil {
		h.writeError(w, "unknown market kind", http.StatusNotFound)
		return
	}
	raw := chi.URLParam(r, "marketID")
	if len(raw) != 2+2*common.HashLength {
		h.writeError(w, "invalid market id", http.StatusBadRequest)
		return
	}
	id := common.HexToHash(raw)

	var resp ProposalResponse
	h.protocol.Chain.Read(func(uint64) {
		if p, ok := adapter.GetProposal(id); ok {
			resp.Proposal = &p
		}
		resp.Result = adapter.GetResult(id)
	})
	if resp.Proposal == nil {
		h.writeError(w, "no proposal for market", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleLogs handles GET /api/logs?from=&limit=.
func (h *APIHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseUint(defaultString(r.URL.Query().Get("from"), "0"), 10, 64)
	if err != nil {
		h.writeError(w, "invalid from", http.StatusBadRequest)
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil || limit <= 0 {
		h.writeError(w, "invalid limit", http.StatusBadRequest)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	logs := h.protocol.Chain.Logs(from, limit)
	if logs == nil {
		logs = []ledger.Log{}
	}
	h.writeJSON(w, http.StatusOK, logs)
}

// writeDomainError maps contract errors onto HTTP statuses.
func (h *APIHandler) writeDomainError(w http.ResponseWriter, err error) {
	var revert *types.RevertError
	msg := err.Error()
	if errors.As(err, &revert) {
		msg = revert.Err.Error()
	}

	switch {
	case errors.Is(err, types.ErrUnknownMarket):
		h.writeError(w, msg, http.StatusNotFound)
	case isAny(err, forbiddenErrs):
		h.writeError(w, msg, http.StatusForbidden)
	case isAny(err, conflictErrs):
		h.writeError(w, msg, http.StatusConflict)
	case isAny(err, unprocessableErrs):
		h.writeError(w, msg, http.StatusUnprocessableEntity)
	default:
		h.logger.Error("api-request-failed", zap.Error(err))
		h.writeError(w, "internal error", http.StatusInternalServerError)
	}
}

//nolint:gochecknoglobals // status lookup tables
var (
	forbiddenErrs = []error{
		types.ErrNotAuthorized, types.ErrNotCouncil, types.ErrNotWhitelisted, types.ErrNotOwner,
	}
	// The call is valid but the contract is in the wrong state or time window for it.
	conflictErrs = []error{
		types.ErrBadState, types.ErrTooEarly, types.ErrNotStarted, types.ErrTradingEnded,
		types.ErrResolutionTooEarly, types.ErrLivenessElapsed, types.ErrOracleNotFinalized,
		types.ErrOracleInvalid, types.ErrNotApproved, types.ErrMarketExists,
		types.ErrCreatorAlreadySet, types.ErrReentrant,
	}
	unprocessableErrs = []error{
		types.ErrInvalidOutcome, types.ErrZeroAmount, types.ErrZeroAddress, types.ErrInvalidTimeRange,
		types.ErrInvalidFeeSplit, types.ErrInvalidParams, types.ErrOutcomeMismatch, types.ErrLiquidityRequired,
		types.ErrInsufficientBalance, types.ErrInsufficientAllowance, types.ErrInsufficientLiquidity,
		types.ErrExceedsClaim, types.ErrOverflow, types.ErrUnderflow, types.ErrDepthNotInitialized,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
