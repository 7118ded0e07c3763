// Package file stores OAuth states and tokens as JSON documents on disk.
//
// The layout matches what the connector has always written:
//
//	{dir}/tokens.json   {"zoho": {"access_token": ..., "last_authenticated": ...}, ...}
//	{dir}/states.json   {"zoho": {"state": ..., "created_at": ...}, ...}
//
// Documents are rewritten atomically (temporary file, fsync, rename) and all
// access goes through one mutex, so a Store is safe for concurrent use within a
// process. Running several processes against the same directory is not supported.
//
// ContactsExporter writes fetched contacts to contact_data/{crm}_contacts.json.
package file
