package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/storage"
)

// shutdownTimeout bounds flushing telemetry and closing the store
const shutdownTimeout = 5 * time.Second

// withApp builds the app, runs fn and closes the app
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			a.logger.Warn("Failed to shut down cleanly", "error", err)
		}
	}()
	return fn(cmd.Context(), a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// tokenSummary is printed instead of raw credentials
type tokenSummary struct {
	Status            string    `json:"status"`
	CRM               string    `json:"crm"`
	HasRefreshToken   bool      `json:"has_refresh_token"`
	Scope             string    `json:"scope,omitempty"`
	ExpiresAt         time.Time `json:"expires_at,omitzero"`
	LastAuthenticated time.Time `json:"last_authenticated,omitzero"`
}

func summarize(rec *storage.TokenRecord) tokenSummary {
	return tokenSummary{
		Status:            rec.Status,
		CRM:               rec.Provider,
		HasRefreshToken:   rec.RefreshToken != "",
		Scope:             rec.Scope,
		ExpiresAt:         rec.ExpiresAt,
		LastAuthenticated: rec.LastAuthenticated,
	}
}

func newAuthURLCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url <crm>",
		Short: "Print the consent URL for a CRM",
		Long: `Generate a fresh anti-forgery state, store it and print the URL where the
user grants access. The state is valid for CRM_STATE_TTL (default 10m).

Examples:
  crm-oauth auth-url zoho
  crm-oauth auth-url capsule`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				resp, err := a.service.AuthorizationURL(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.AuthURL)
				return err
			})
		},
	}
}

func newCallbackCmd(opts *rootOptions) *cobra.Command {
	var code, state string

	cmd := &cobra.Command{
		Use:   "callback <crm>",
		Short: "Exchange an authorization code for tokens",
		Long: `Complete the authorization started with auth-url. The code and state are
the query parameters the CRM appended to the redirect URI.

Example:
  crm-oauth callback zoho --code 1000.abc --state 7Fq...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rec, err := a.service.HandleCallback(ctx, args[0], code, state)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(rec))
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the redirect")
	cmd.Flags().StringVar(&state, "state", "", "State from the redirect")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "refresh <crm>",
		Short: "Refresh the access token of a CRM",
		Long: `Exchange a refresh token for a new access token and store it. Without
--refresh-token the stored refresh token is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rec, err := a.service.Refresh(ctx, args[0], refreshToken)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summarize(rec))
			})
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token to use instead of the stored one")
	return cmd
}

func newContactsCmd(opts *rootOptions) *cobra.Command {
	var crm string
	var page int

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Fetch one page of contacts",
		Long: `Fetch and normalize one page of contacts. Without --crm the most recently
authorized CRM is used. An expired access token is refreshed once.

Examples:
  crm-oauth contacts
  crm-oauth contacts --crm capsule --page 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				resp, err := a.service.FetchContacts(ctx, crm, page)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}

	cmd.Flags().StringVar(&crm, "crm", "", "CRM to read from (default: most recently authorized)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [crm]",
		Short: "Delete stored tokens",
		Long:  `Delete the stored tokens of one CRM, or of every CRM when none is named.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var crm string
			if len(args) == 1 {
				crm = args[0]
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				removed, err := a.service.ClearTokens(ctx, crm)
				if err != nil {
					return err
				}

				target := crm
				if target == "" {
					target = "all CRMs"
				}
				if removed {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared tokens for %s\n", target)
				} else {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "No tokens stored for %s\n", target)
				}
				return err
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which CRMs are authorized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				statuses, err := a.service.Status(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), statuses)
				}
				return printStatusTable(cmd.OutOrStdout(), statuses)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printStatusTable(w io.Writer, statuses []oauth.ProviderStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CRM\tAUTHORIZED\tEXPIRED\tREFRESH TOKEN\tEXPIRES AT")
	for _, st := range statuses {
		expiresAt := "-"
		if !st.ExpiresAt.IsZero() {
			expiresAt = st.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%t\t%s\n", st.Provider, st.Authorized, st.Expired, st.HasRefreshToken, expiresAt)
	}
	return tw.Flush()
}
