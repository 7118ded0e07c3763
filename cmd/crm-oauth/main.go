// Command crm-oauth connects to Zoho CRM and Capsule CRM over OAuth2 and
// fetches normalized contacts.
//
// Configuration is read from the environment (optionally from a .env file):
//
//	CRM_BASE_URL                    public URL used to build redirect URIs
//	<CRM>_CLIENT_ID, <CRM>_CLIENT_SECRET  per provider, e.g. ZOHO_CLIENT_ID
//	<CRM>_AUTH_PARAMS               extra authorization parameters, key=value,...
//	CRM_STORAGE                     file (default), bolt, redis or memory
//	CRM_STORAGE_DIR                 data directory for file and bolt storage
//	CRM_ENCRYPTION_KEY              base64 AES-256 key; enables token encryption at rest
//	CRM_ENCRYPTION_SECRET           alternative to CRM_ENCRYPTION_KEY, stretched with HKDF
//
// Typical flow:
//
//	crm-oauth auth-url zoho
//	crm-oauth callback zoho --code <code> --state <state>
//	crm-oauth contacts --page 1
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/providers"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	// ExitCodeGeneralError indicates a generic error
	ExitCodeGeneralError = 1

	// ExitCodeConfigError indicates the configuration is invalid
	ExitCodeConfigError = 2

	// ExitCodeAuthorizationRequired indicates the CRM must be (re)authorized
	ExitCodeAuthorizationRequired = 3
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	envFile   string
	logLevel  string
	logFormat string

	stderr io.Writer
}

func main() {
	cmd := newRootCmd(os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stderr: stderr}

	cmd := &cobra.Command{
		Use:           "crm-oauth",
		Short:         "OAuth connector for Zoho CRM and Capsule CRM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load (ignored if missing)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		newAuthURLCmd(opts),
		newCallbackCmd(opts),
		newRefreshCmd(opts),
		newContactsCmd(opts),
		newClearCmd(opts),
		newStatusCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case oauth.IsCode(err, oauth.ErrorCodeConfiguration),
		providers.IsKind(err, providers.KindConfiguration):
		return ExitCodeConfigError
	case oauth.IsCode(err, oauth.ErrorCodeAuthorizationRequired):
		return ExitCodeAuthorizationRequired
	default:
		return ExitCodeGeneralError
	}
}
