package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrLockHeld            = errors.New("lock already held")
	ErrRateLimited         = errors.New("rate limited")
	ErrNoOpportunity       = errors.New("no profitable trades found")
	ErrBelowMinProfit      = errors.New("best profit is below the minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoLiquidity         = errors.New("no liquidity available")
	ErrMathOverflow        = errors.New("math overflow")
	ErrBundleNotLanded     = errors.New("bundle did not land")
	ErrDuplicate           = errors.New("duplicate opportunity")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
