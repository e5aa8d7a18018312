package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrStateMismatch    = fmt.Errorf("oauth state mismatch")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and playback errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrDeviceNotFound     = fmt.Errorf("playback device not found")
	ErrPlayerNotReady     = fmt.Errorf("player not ready")
	ErrCommandDisallowed  = fmt.Errorf("command not allowed in current playback state")
	ErrPremiumRequired    = fmt.Errorf("premium account required")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
