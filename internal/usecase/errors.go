package usecase

import "errors"

var (
	ErrNotAuthenticated     = errors.New("broker session not authenticated")
	ErrSessionExpired       = errors.New("broker session expired")
	ErrNoRefreshToken       = errors.New("session has no refresh token")
	ErrAuthCodeRequired     = errors.New("auth code required")
	ErrAlreadyCollecting    = errors.New("collection already running")
	ErrUniverseTooLarge     = errors.New("symbol universe exceeds connection capacity")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrNoBars               = errors.New("symbol has no bars yet")
	ErrUnsupportedTimeframe = errors.New("timeframe finer than engine timeframe")
	ErrInvalidRange         = errors.New("from must not be after to")
)
