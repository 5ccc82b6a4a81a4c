package connector

import "errors"

var (
	// Connector lifecycle errors
	ErrConnectorNotFound    = errors.New("connector: connector not found")
	ErrConnectorExists      = errors.New("connector: connector already exists for tenant and provider")
	ErrConnectorDisabled    = errors.New("connector: connector is disabled")
	ErrConnectorDeleted     = errors.New("connector: connector has been deleted")
	ErrMissingCredentials   = errors.New("connector: connector has no usable credentials")
	ErrInvalidProvider      = errors.New("connector: invalid provider type")
	ErrUnsupportedProvider  = errors.New("connector: provider not registered")
	ErrSyncInProgress       = errors.New("connector: a sync is already running for this connector")
	ErrInvalidSyncType      = errors.New("connector: invalid sync type")
	ErrSyncLogNotFound      = errors.New("connector: sync log not found")
	ErrSyncAlreadyFinalized = errors.New("connector: sync log already finalized")

	// Provider-level errors. Transient errors are retried inside provider
	// clients; fatal errors abort the current sync run.
	ErrProviderAuth            = errors.New("connector: provider authentication failed")
	ErrProviderRateLimited     = errors.New("connector: provider rate limited")
	ErrProviderUnavailable     = errors.New("connector: provider temporarily unavailable")
	ErrProviderRequestFailed   = errors.New("connector: provider request failed")
	ErrProviderInvalidResponse = errors.New("connector: invalid provider response")
)

// IsTransientProviderError reports whether the error is worth retrying
// with backoff before giving up on the current page.
func IsTransientProviderError(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderRequestFailed)
}

// IsFatalProviderError reports whether the error must abort the whole
// sync run rather than being recorded as a per-page failure.
func IsFatalProviderError(err error) bool {
	return errors.Is(err, ErrProviderAuth)
}
