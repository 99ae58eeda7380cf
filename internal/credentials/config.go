package credentials

import (
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
)

// DefaultRefreshInterval is kept short of Google's 60 minute access token lifetime.
const DefaultRefreshInterval = 50 * time.Minute

// oobRedirectURL is the out-of-band redirect used for the manual code flow.
const oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

// Config is the credential part of the configuration surface.
type Config struct {
	Enabled      bool
	ClientID     string
	ClientSecret string

	// RefreshToken and AccessToken seed the manager when the token store is empty.
	RefreshToken string
	AccessToken  string

	RefreshInterval time.Duration

	// TokenURL overrides Google's token endpoint. Empty uses google.Endpoint.
	TokenURL string
}

func (c Config) interval() time.Duration {
	if c.RefreshInterval <= 0 {
		return DefaultRefreshInterval
	}
	return c.RefreshInterval
}

// OAuthConfig returns the oauth2 configuration for the calendar scope.
func (c Config) OAuthConfig() *oauth2.Config {
	endpoint := google.Endpoint
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  oobRedirectURL,
		Scopes:       []string{calendar.CalendarScope},
	}
}

func (c Config) validate() error {
	if !c.Enabled {
		return &ConfigurationError{Field: "GOOGLE_CALENDAR_ENABLED", Reason: "integration is disabled", Err: ErrDisabled}
	}
	if c.ClientID == "" {
		return &ConfigurationError{Field: "GOOGLE_CLIENT_ID", Reason: "client id is required"}
	}
	if c.ClientSecret == "" {
		return &ConfigurationError{Field: "GOOGLE_CLIENT_SECRET", Reason: "client secret is required"}
	}
	return nil
}
