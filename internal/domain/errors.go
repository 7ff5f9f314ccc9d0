package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrSigningFailed  = errors.New("signing failed")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrOrderInFlight  = errors.New("another order is in flight")
	ErrNoLiquidity    = errors.New("no liquidity on the required side")
	ErrClientRequired = errors.New("trading client not available")
	ErrMarketResolved = errors.New("market resolved")
)
