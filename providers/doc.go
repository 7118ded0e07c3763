// Package providers defines the CRM provider interface, the canonical token and
// contact types, and the shared OAuth client that provider implementations embed.
//
// Implementations are provided in subpackages:
//   - providers/zoho: Zoho CRM (offline access, Zoho-oauthtoken auth header)
//   - providers/capsule: Capsule CRM
//   - providers/mock: configurable provider for tests
//
// Provider implementations handle:
//   - Authorization URL generation with per-provider extra parameters
//   - Authorization code exchange
//   - Token refresh
//   - Fetching one page of contacts, with a single refresh and retry on 401
//   - Normalizing provider contact payloads into Contact
//
// Example usage:
//
//	provider, err := zoho.NewProvider(&zoho.Config{
//	    ClientID:     "your-client-id",
//	    ClientSecret: "your-client-secret",
//	    RedirectURL:  "http://localhost:8000/integrations/callback/zoho",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry, _ := providers.NewRegistry(provider)
package providers
