package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Input validation.
var (
	ErrZeroAmount       = errors.New("zero amount")
	ErrZeroAddress      = errors.New("zero address")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrInvalidFeeSplit  = errors.New("invalid fee split")
	ErrInvalidParams    = errors.New("invalid parameters")
)

// State-machine violations.
var (
	ErrNotStarted          = errors.New("trading not started")
	ErrTradingEnded        = errors.New("trading ended")
	ErrResolutionTooEarly  = errors.New("resolution too early")
	ErrBadState            = errors.New("bad state")
	ErrTooEarly            = errors.New("too early")
	ErrLivenessElapsed     = errors.New("liveness window elapsed")
	ErrOracleNotFinalized  = errors.New("oracle result not finalized")
	ErrOracleInvalid       = errors.New("oracle result invalid")
	ErrOutcomeMismatch     = errors.New("outcome does not match oracle result")
	ErrNotApproved         = errors.New("market not approved for trading")
	ErrCreatorAlreadySet   = errors.New("creator already set")
	ErrMarketExists        = errors.New("market already exists")
	ErrUnknownMarket       = errors.New("unknown market")
	ErrLiquidityRequired   = errors.New("initial liquidity required")
	ErrReentrant           = errors.New("reentrant call")
	ErrDepthNotInitialized = errors.New("curve depth not initialized")
)

// Authorization.
var (
	ErrNotAuthorized  = errors.New("not authorized")
	ErrNotCouncil     = errors.New("not council")
	ErrNotWhitelisted = errors.New("not whitelisted")
	ErrNotOwner       = errors.New("not owner")
)

// Solvency and accounting.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrExceedsClaim          = errors.New("withdrawal exceeds claim")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrUnderflow             = errors.New("arithmetic underflow")
	ErrDivisionByZero        = errors.New("division by zero")
)

// RevertError is returned by the ledger when a transaction aborts.
// Every state write of the transaction has been rolled back when it is returned.
type RevertError struct {
	Op     string         // Operation name, e.g. "market.buy"
	Sender common.Address // Transaction sender
	Err    error          // Underlying reason
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s reverted (sender %s): %v", e.Op, e.Sender.Hex(), e.Err)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}
