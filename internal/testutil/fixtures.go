package testutil

// TokenJSON is a token endpoint response with a refresh token
const TokenJSON = `{
  "access_token": "1000.access.first",
  "refresh_token": "1000.refresh.first",
  "token_type": "Bearer",
  "expires_in": 3600,
  "api_domain": "https://www.zohoapis.com",
  "scope": "ZohoCRM.modules.contacts.READ"
}`

// RefreshedTokenJSON is a refresh response that does not rotate the refresh token
const RefreshedTokenJSON = `{
  "access_token": "1000.access.refreshed",
  "token_type": "Bearer",
  "expires_in": 3600
}`

// TokenWithoutExpiryJSON omits expires_in
const TokenWithoutExpiryJSON = `{
  "access_token": "access-no-expiry",
  "refresh_token": "refresh-no-expiry",
  "token_type": "Bearer"
}`

// InvalidGrantJSON is an OAuth error response
const InvalidGrantJSON = `{"error": "invalid_grant", "error_description": "code expired"}`

// ZohoContactsJSON is a Zoho CRM v2 Contacts page
const ZohoContactsJSON = `{
  "data": [
    {
      "id": "4150868000000224005",
      "First_Name": "Ada",
      "Last_Name": "Lovelace",
      "Full_Name": "Ada Lovelace",
      "Email": "ada@example.com",
      "Phone": "+44 20 7946 0000",
      "Mobile": "+44 7700 900000",
      "Account_Name": {"name": "Analytical Engines Ltd", "id": "4150868000000224001"},
      "Owner": {"name": "Owner One", "id": "4150868000000194001", "email": "owner@example.com"}
    },
    {
      "id": 4150868000000224006,
      "first_name": "Grace",
      "LAST_NAME": "Hopper",
      "email": "grace@example.com",
      "Other_Phone": "+1 555 0100"
    },
    "not-an-object"
  ],
  "info": {"per_page": 200, "count": 2, "page": 1, "more_records": false}
}`

// CapsulePartiesJSON is a Capsule API v2 parties page
const CapsulePartiesJSON = `{
  "parties": [
    {
      "id": 11587,
      "type": "person",
      "firstName": "Scott",
      "lastName": "Spacey",
      "emailAddresses": [{"id": 12135, "type": "Work", "address": "scott@example.com"}],
      "phoneNumbers": [
        {"id": 12133, "type": "Mobile", "number": "07700 900123"},
        {"id": 12134, "type": "Work", "number": "0161 496 0000"}
      ],
      "organisation": {"id": 11586, "name": "Capsule Ltd"}
    },
    {
      "id": 11586,
      "type": "organisation",
      "name": "Capsule Ltd",
      "emailAddresses": [],
      "phoneNumbers": []
    }
  ]
}`
