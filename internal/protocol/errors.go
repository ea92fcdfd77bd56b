package protocol

const (
	// Request validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Account state.
	ErrNotLinked  = "E_NOT_LINKED"
	ErrBanned     = "E_BANNED"
	ErrNoProfiles = "E_NO_PROFILES"

	// Upstream data API.
	ErrUpstream  = "E_UPSTREAM"
	ErrRateLimit = "E_RATE_LIMIT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest: {},
	ErrNotLinked:  {},
	ErrBanned:     {},
	ErrNoProfiles: {},
	ErrUpstream:   {},
	ErrRateLimit:  {},
	ErrInternal:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
