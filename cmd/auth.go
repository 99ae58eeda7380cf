package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/milestonesync/internal/credentials"
)

func newAuthCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar access and store the refresh token",
		Long: `Print the Google consent URL, then exchange the authorization code for a
refresh token and write it to CREDENTIALS_FILE. This is the fix when the
service reports that re-authorization is required.

GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.Credentials.ClientID == "" || cfg.Credentials.ClientSecret == "" {
				return &credentials.ConfigurationError{Field: "GOOGLE_CLIENT_ID", Reason: "client id and secret are required to authorize"}
			}

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintln(out, "Open this URL in your browser and grant calendar access:")
				fmt.Fprintf(out, "\n  %s\n\n", credentials.AuthCodeURL(cfg.Credentials))
				fmt.Fprint(out, "Paste the authorization code: ")

				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read authorization code: %w", err)
				}
				code = strings.TrimSpace(line)
			}

			store := credentials.NewFileStore(cfg.CredentialsFile)
			if _, err := credentials.ExchangeCode(cmd.Context(), cfg.Credentials, code, store, nil); err != nil {
				return err
			}
			fmt.Fprintf(out, "Refresh token stored in %s\n", store.Path())
			fmt.Fprintln(out, "Restart milestonesync serve to resume calendar sync.")
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code (skips the interactive prompt)")
	return cmd
}
