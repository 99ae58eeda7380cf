package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// AuthCodeURL returns the URL an operator opens to authorize the application.
// Offline access with a forced consent prompt makes Google issue a new refresh
// token even for an application that was authorized before.
func AuthCodeURL(cfg Config) string {
	return cfg.OAuthConfig().AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for tokens and saves them to store.
// A nil client uses http.DefaultClient.
func ExchangeCode(ctx context.Context, cfg Config, code string, store TokenStore, client *http.Client) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("authorization code cannot be empty")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &ConfigurationError{Field: "GOOGLE_CLIENT_ID", Reason: "client id and secret are required to authorize"}
	}
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	token, err := cfg.OAuthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("google did not return a refresh token; revoke the app's access and authorize again")
	}
	if err := store.Save(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ReauthorizationNotice is the operator-facing fix for the terminal state.
func ReauthorizationNotice(tokenPath string) string {
	var b strings.Builder
	b.WriteString("Google Calendar token refresh failed: the refresh token has been revoked or is invalid.\n")
	b.WriteString("Calendar sync is stopped until the application is re-authorized.\n\n")
	b.WriteString("Steps to fix:\n")
	b.WriteString("1. Open https://console.cloud.google.com/apis/credentials and select the project\n")
	b.WriteString("2. Check that the OAuth 2.0 client (GOOGLE_CLIENT_ID) still exists and is enabled\n")
	b.WriteString("3. Run: milestonesync auth\n")
	b.WriteString("4. Open the printed URL, grant calendar access and paste the code back\n")
	if tokenPath != "" {
		fmt.Fprintf(&b, "5. The new token is written to %s; restart milestonesync serve\n", tokenPath)
	} else {
		b.WriteString("5. Update GOOGLE_REFRESH_TOKEN with the new token and restart milestonesync serve\n")
	}
	return b.String()
}
