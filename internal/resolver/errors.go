package resolver

import "errors"

// Resolution errors. All failures returned by Resolve wrap one of these,
// so callers can distinguish classes of failure with errors.Is.
var (
	// ErrIPLookup is returned when the public-IP lookup through the
	// SOCKS endpoint fails or returns an unusable body.
	ErrIPLookup = errors.New("public IP lookup failed")

	// ErrCountryLookup is returned when the country lookup for a
	// resolved IP fails. A stale cached identity must not be treated as
	// valid when this occurs.
	ErrCountryLookup = errors.New("country lookup failed")
)
