package apperrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable classification for user-visible
// failures. Read-layer failures are absorbed into the data model and never
// carry one of these codes; only validation and transaction-boundary errors
// do.
type Code int

const (
	CodeInternal Code = iota + 1
	CodeUsage
	// CodeInsufficientCapacity: the proposed borrow exceeds the account's
	// available borrowing power. Corrective action: add collateral.
	CodeInsufficientCapacity
	// CodeInsufficientLiquidity: the market's cash cannot cover the
	// proposed amount. Corrective action: wait for liquidity or borrow less.
	CodeInsufficientLiquidity
	// CodeUtilizationGuard: the projected post-trade utilization breaches
	// the conservative guard threshold.
	CodeUtilizationGuard
	// CodeUnknownAsset: the asset is not registered on the target chain.
	CodeUnknownAsset
	// CodeNoMarket: the asset is registered but has no live market on the
	// target chain.
	CodeNoMarket
)

// Error is a typed engine error carrying a stable code so callers can
// surface the right corrective action.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// As extracts a typed engine error from an error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Reason returns the short reason string for a code, used in API responses.
func (c Code) Reason() string {
	switch c {
	case CodeUsage:
		return "bad_request"
	case CodeInsufficientCapacity:
		return "insufficient_capacity"
	case CodeInsufficientLiquidity:
		return "insufficient_market_liquidity"
	case CodeUtilizationGuard:
		return "utilization_guard"
	case CodeUnknownAsset:
		return "unknown_asset"
	case CodeNoMarket:
		return "no_market"
	default:
		return "internal"
	}
}
