// Package credentials owns the refreshable Google OAuth credential.
//
// A Manager moves through a small state machine:
//
//	Uninitialized -> Ready <-> RefreshInFlight
//	                  |
//	                  +-> RequiresReauthorization (terminal)
//
// Initialize loads the persisted token (or the configured seed), Run refreshes
// it proactively on a fixed interval, and Refresh is also called reactively by
// the calendar gateway after an authorization failure. A refresh that shows the
// refresh token itself is no longer valid moves the manager to the terminal
// state. Run then returns ErrReauthorizationRequired so the caller can alert an
// operator; there is no automated recovery from that state.
//
// The *http.Client returned by Client reads the manager's current access token
// on every request, so a refresh is visible to all holders immediately.
package credentials
