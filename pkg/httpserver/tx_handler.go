package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/internal/curation"
	"github.com/mselser95/settlement-engine/internal/factory"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/market"
	"github.com/mselser95/settlement-engine/internal/oracle"
	"github.com/mselser95/settlement-engine/internal/token"
	"github.com/mselser95/settlement-engine/pkg/fixed"
	"github.com/mselser95/settlement-engine/pkg/types"
	"go.uber.org/zap"
)

const maxTxBody = 64 << 10

// TxRequest is the body of POST /api/tx/{op}. The node signs nothing: From is
// taken as the sender, so the endpoint belongs on local and test deployments.
// Amounts are integers in base units, decimal or 0x-prefixed hex.
type TxRequest struct {
	From  common.Address  `json:"from" validate:"required"`
	Value *uint256.Int    `json:"value,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// TxResponse reports a committed transaction.
type TxResponse struct {
	Op     string `json:"op"`
	Height uint64 `json:"height"`
	Result any    `json:"result,omitempty"`
}

// CreatedMarket is the result of market.create.
type CreatedMarket struct {
	Market   common.Address `json:"market"`
	MarketID common.Hash    `json:"market_id"`
	Kind     market.Kind    `json:"kind"`
}

// AmountResult carries the amount a transaction paid out or minted.
type AmountResult struct {
	Amount *uint256.Int `json:"amount"`
}

// OracleTarget names the proposal an oracle transaction acts on.
type OracleTarget struct {
	Kind     market.Kind `json:"kind" validate:"required"`
	MarketID common.Hash `json:"market_id" validate:"required"`
}

type txOp func(h *APIHandler, req TxRequest) (any, error)

//nolint:gochecknoglobals // dispatch table
var txOps = map[string]txOp{
	"collateral.deposit":      (*APIHandler).txDeposit,
	"collateral.withdraw":     (*APIHandler).txWithdraw,
	"collateral.approve":      (*APIHandler).txApprove,
	"market.create":           (*APIHandler).txCreate,
	"market.buy":              (*APIHandler).txBuy,
	"market.add-liquidity":    (*APIHandler).txAddLiquidity,
	"market.remove-liquidity": (*APIHandler).txRemoveLiquidity,
	"market.close":            (*APIHandler).txClose,
	"market.finalize":         (*APIHandler).txFinalize,
	"market.redeem":           (*APIHandler).txRedeem,
	"oracle.propose":          (*APIHandler).txPropose,
	"oracle.dispute":          (*APIHandler).txDispute,
	"oracle.finalize":         (*APIHandler).txOracleFinalize,
	"oracle.arbitrate":        (*APIHandler).txArbitrate,
	"oracle.invalidate":       (*APIHandler).txInvalidate,
	"fees.claim-creator":      (*APIHandler).txClaimCreator,
	"fees.claim-protocol":     (*APIHandler).txClaimProtocol,
	"curation.set-status":     (*APIHandler).txSetStatus,
}

// requestError marks a malformed request, as opposed to a reverted transaction.
type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return requestError{err: fmt.Errorf(format, args...)}
}

// HandleTx handles POST /api/tx/{op}.
func (h *APIHandler) HandleTx(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "op")
	op, ok := txOps[name]
	if !ok {
		h.writeError(w, "unknown operation", http.StatusNotFound)
		return
	}

	var req TxRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody)).Decode(&req)
	if err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, "missing sender", http.StatusBadRequest)
		return
	}

	result, err := op(h, req)
	if err != nil {
		var reqErr requestError
		if errors.As(err, &reqErr) {
			h.writeError(w, reqErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Debug("tx-rejected", zap.String("op", name), zap.String("from", req.From.Hex()), zap.Error(err))
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, TxResponse{Op: name, Height: h.protocol.Chain.Height(), Result: result})
}

func decodeArgs[T any](h *APIHandler, raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, badRequest("args: %w", err)
	}
	if err := h.validate.Struct(args); err != nil {
		return args, badRequest("args: %w", err)
	}
	return args, nil
}

// onMarket runs fn against the registered market at addr as one transaction.
func (h *APIHandler) onMarket(req TxRequest, addr common.Address, op string, fn func(*ledger.Tx, market.Contract) error) error {
	return h.protocol.Chain.Execute(req.From, op, func(tx *ledger.Tx) error {
		m, ok := h.protocol.Market(addr)
		if !ok {
			return fmt.Errorf("market %s: %w", addr.Hex(), types.ErrUnknownMarket)
		}
		return fn(tx, m)
	})
}

func (h *APIHandler) onOracle(req TxRequest, t OracleTarget, op string, fn func(*ledger.Tx, *oracle.Adapter) error) error {
	adapter := h.protocol.Oracle(t.Kind)
	if adapter == nil {
		return badRequest("unknown market kind %q", t.Kind)
	}
	return h.protocol.Chain.Execute(req.From, op, func(tx *ledger.Tx) error {
		return fn(tx, adapter)
	})
}

func (h *APIHandler) txDeposit(req TxRequest) (any, error) {
	c := h.protocol.Collateral
	return nil, h.protocol.Chain.ExecuteWithValue(req.From, c.Address(), fixed.OrZero(req.Value), "collateral.deposit", c.Deposit)
}

func (h *APIHandler) txWithdraw(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Amount *uint256.Int `json:"amount" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.protocol.Chain.Execute(req.From, "collateral.withdraw", func(tx *ledger.Tx) error {
		return h.protocol.Collateral.Withdraw(tx, args.Amount)
	})
}

func (h *APIHandler) txApprove(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Spender common.Address `json:"spender" validate:"required"`
		Amount  *uint256.Int   `json:"amount"` // nil approves without limit
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	amount := args.Amount
	if amount == nil {
		amount = token.MaxAllowance()
	}
	return nil, h.protocol.Chain.Execute(req.From, "collateral.approve", func(tx *ledger.Tx) error {
		return h.protocol.Collateral.Approve(tx, args.Spender, amount)
	})
}

type createArgs struct {
	Kind                 market.Kind `json:"kind" validate:"required"`
	factory.CreateParams `validate:"-"`
}

// txCreate deploys a market; the attached value is its initial liquidity.
func (h *APIHandler) txCreate(req TxRequest) (any, error) {
	args, err := decodeArgs[createArgs](h, req.Args)
	if err != nil {
		return nil, err
	}

	var (
		at     common.Address
		create func(*ledger.Tx) (market.Contract, error)
	)
	switch args.Kind {
	case market.KindBinary:
		at = h.protocol.Binary.Address()
		create = func(tx *ledger.Tx) (market.Contract, error) { return h.protocol.Binary.Create(tx, args.CreateParams) }
	case market.KindMulti:
		at = h.protocol.Multi.Address()
		create = func(tx *ledger.Tx) (market.Contract, error) { return h.protocol.Multi.Create(tx, args.CreateParams) }
	case market.KindScalar:
		at = h.protocol.Scalar.Address()
		create = func(tx *ledger.Tx) (market.Contract, error) { return h.protocol.Scalar.Create(tx, args.CreateParams) }
	default:
		return nil, badRequest("unknown market kind %q", args.Kind)
	}

	var out CreatedMarket
	err = h.protocol.Chain.ExecuteWithValue(req.From, at, fixed.OrZero(req.Value), "factory.create", func(tx *ledger.Tx) error {
		m, err := create(tx)
		if err != nil {
			return err
		}
		out = CreatedMarket{Market: m.Address(), MarketID: m.Info().MarketID, Kind: m.Kind()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type marketArgs struct {
	Market common.Address `json:"market" validate:"required"`
}

func (h *APIHandler) txBuy(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market  common.Address `json:"market" validate:"required"`
		Outcome int            `json:"outcome"`
		Shares  *uint256.Int   `json:"shares" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	var quote market.Quote
	err = h.onMarket(req, args.Market, "market.buy", func(tx *ledger.Tx, m market.Contract) error {
		var err error
		quote, err = m.Buy(tx, args.Outcome, args.Shares)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (h *APIHandler) txAddLiquidity(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market common.Address `json:"market" validate:"required"`
		Amount *uint256.Int   `json:"amount" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	var minted *uint256.Int
	err = h.onMarket(req, args.Market, "market.add-liquidity", func(tx *ledger.Tx, m market.Contract) error {
		var err error
		minted, err = m.AddLiquidity(tx, args.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: minted}, nil
}

func (h *APIHandler) txRemoveLiquidity(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market   common.Address `json:"market" validate:"required"`
		LPTokens *uint256.Int   `json:"lp_tokens" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	var paid *uint256.Int
	err = h.onMarket(req, args.Market, "market.remove-liquidity", func(tx *ledger.Tx, m market.Contract) error {
		var err error
		paid, err = m.RemoveLiquidity(tx, args.LPTokens)
		return err
	})
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: paid}, nil
}

func (h *APIHandler) txClose(req TxRequest) (any, error) {
	args, err := decodeArgs[marketArgs](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onMarket(req, args.Market, "market.close", func(tx *ledger.Tx, m market.Contract) error {
		return m.Close(tx)
	})
}

func (h *APIHandler) txFinalize(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market common.Address `json:"market" validate:"required"`
		Value  *uint256.Int   `json:"value" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onMarket(req, args.Market, "market.finalize", func(tx *ledger.Tx, m market.Contract) error {
		return m.Finalize(tx, args.Value)
	})
}

func (h *APIHandler) txRedeem(req TxRequest) (any, error) {
	args, err := decodeArgs[marketArgs](h, req.Args)
	if err != nil {
		return nil, err
	}
	var paid *uint256.Int
	err = h.onMarket(req, args.Market, "market.redeem", func(tx *ledger.Tx, m market.Contract) error {
		var err error
		paid, err = m.Redeem(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: paid}, nil
}

func (h *APIHandler) txPropose(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		OracleTarget
		Payload  hexutil.Bytes `json:"payload" validate:"required"`
		Evidence string        `json:"evidence"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onOracle(req, args.OracleTarget, "oracle.propose", func(tx *ledger.Tx, a *oracle.Adapter) error {
		return a.ProposeResult(tx, args.MarketID, args.Payload, args.Evidence)
	})
}

func (h *APIHandler) txDispute(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		OracleTarget
		Evidence string `json:"evidence"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onOracle(req, args.OracleTarget, "oracle.dispute", func(tx *ledger.Tx, a *oracle.Adapter) error {
		return a.Dispute(tx, args.MarketID, args.Evidence)
	})
}

func (h *APIHandler) txOracleFinalize(req TxRequest) (any, error) {
	args, err := decodeArgs[OracleTarget](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onOracle(req, args, "oracle.finalize", func(tx *ledger.Tx, a *oracle.Adapter) error {
		return a.Finalize(tx, args.MarketID)
	})
}

// txArbitrate rules on a dispute. Invalid marks the result invalid and
// ignores Value.
func (h *APIHandler) txArbitrate(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		OracleTarget
		Value        *uint256.Int `json:"value"`
		Invalid      bool         `json:"invalid"`
		ReporterWins bool         `json:"reporter_wins"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	value := args.Value
	if args.Invalid {
		value = oracle.InvalidValue()
	}
	if value == nil {
		return nil, badRequest("args: value or invalid required")
	}
	return nil, h.onOracle(req, args.OracleTarget, "oracle.arbitrate", func(tx *ledger.Tx, a *oracle.Adapter) error {
		return a.Arbitrate(tx, args.MarketID, value, args.ReporterWins)
	})
}

func (h *APIHandler) txInvalidate(req TxRequest) (any, error) {
	args, err := decodeArgs[OracleTarget](h, req.Args)
	if err != nil {
		return nil, err
	}
	return nil, h.onOracle(req, args, "oracle.invalidate", func(tx *ledger.Tx, a *oracle.Adapter) error {
		return a.Invalidate(tx, args.MarketID)
	})
}

// Fee claims pay the sender unless To names another recipient.
func (h *APIHandler) txClaimCreator(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market common.Address `json:"market" validate:"required"`
		To     common.Address `json:"to"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	to := args.To
	if to == (common.Address{}) {
		to = req.From
	}
	var paid *uint256.Int
	err = h.protocol.Chain.Execute(req.From, "fees.claim-creator", func(tx *ledger.Tx) error {
		var err error
		paid, err = h.protocol.Router.ClaimCreator(tx, args.Market, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: paid}, nil
}

func (h *APIHandler) txClaimProtocol(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		To common.Address `json:"to"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	to := args.To
	if to == (common.Address{}) {
		to = req.From
	}
	var paid *uint256.Int
	err = h.protocol.Chain.Execute(req.From, "fees.claim-protocol", func(tx *ledger.Tx) error {
		var err error
		paid, err = h.protocol.Router.ClaimProtocol(tx, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return AmountResult{Amount: paid}, nil
}

func (h *APIHandler) txSetStatus(req TxRequest) (any, error) {
	args, err := decodeArgs[struct {
		Market common.Address `json:"market" validate:"required"`
		Status string         `json:"status" validate:"required"`
	}](h, req.Args)
	if err != nil {
		return nil, err
	}
	status, err := curation.ParseStatus(args.Status)
	if err != nil {
		return nil, err
	}
	return nil, h.protocol.Chain.Execute(req.From, "curation.set-status", func(tx *ledger.Tx) error {
		return h.protocol.Curation.SetStatus(tx, args.Market, status)
	})
}
