package enphase

import "fmt"

// AuthReason classifies why authentication failed.
type AuthReason int

const (
	// AuthNotAuthenticated means no token has been obtained yet; the
	// operator needs to run the authorization-code exchange first.
	AuthNotAuthenticated AuthReason = iota + 1
	// AuthMissingCredential means the local bearer token was never
	// configured.
	AuthMissingCredential
	// AuthTokenExchangeFailed means the authorization-code exchange was
	// rejected by the token endpoint.
	AuthTokenExchangeFailed
	// AuthRefreshFailed means a token refresh was rejected; the previously
	// cached token is left untouched.
	AuthRefreshFailed
)

func (r AuthReason) String() string {
	switch r {
	case AuthNotAuthenticated:
		return "not authenticated"
	case AuthMissingCredential:
		return "missing credential"
	case AuthTokenExchangeFailed:
		return "token exchange failed"
	case AuthRefreshFailed:
		return "refresh failed"
	}
	return "unknown"
}

// AuthError is returned for any credential failure.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError is returned when a gateway request fails at the HTTP or
// JSON level. The caller decides whether to retry; the client never does.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
