package celcat

import "fmt"

// AuthReason classifies login failures against the portal.
type AuthReason string

const (
	// AuthInvalidCredentials: the portal rejected the username/password.
	// Terminal for the run.
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	// AuthPortalUnreachable: the portal did not answer within the timeout.
	// Usually transient; retried once with backoff.
	AuthPortalUnreachable AuthReason = "portal_unreachable"
	// AuthUnexpectedResponse: the portal answered but the login markup was
	// not where we expected it. Retried once, since it is most often a
	// hiccup rather than real markup drift.
	AuthUnexpectedResponse AuthReason = "unexpected_response"
)

// AuthError is returned by Session.Login.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("celcat login: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("celcat login: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Retryable reports whether another login attempt is worthwhile.
func (e *AuthError) Retryable() bool {
	return e.Reason == AuthPortalUnreachable || e.Reason == AuthUnexpectedResponse
}

// FetchReason classifies week-fetch failures.
type FetchReason string

const (
	// FetchSessionExpired: the portal bounced the request back to the login
	// page. Recoverable by re-authenticating once.
	FetchSessionExpired FetchReason = "session_expired"
	// FetchCalendarNotFound: the week view rendered without the calendar
	// element. That week's contribution is dropped.
	FetchCalendarNotFound FetchReason = "calendar_element_not_found"
	// FetchParseError: the calendar element was present but the grid could
	// not be parsed. That week's contribution is dropped.
	FetchParseError FetchReason = "parse_error"
)

// FetchError is returned for a failed week fetch. WeekOffset identifies
// which requested week failed (0 = current week).
type FetchError struct {
	Reason     FetchReason
	WeekOffset int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("celcat fetch week %+d: %s: %v", e.WeekOffset, e.Reason, e.Err)
	}
	return fmt.Sprintf("celcat fetch week %+d: %s", e.WeekOffset, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }
