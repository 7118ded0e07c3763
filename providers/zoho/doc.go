// Package zoho implements the providers.Provider interface for Zoho CRM.
//
// Zoho only issues refresh tokens for offline access, so the authorization URL
// carries access_type=offline and prompt=consent unless AuthParams overrides them.
// API calls use the "Zoho-oauthtoken" authorization scheme, and the token
// response reports the data-center specific api_domain.
package zoho
