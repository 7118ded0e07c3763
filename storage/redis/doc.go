// Package redis stores OAuth states and tokens in Redis using rueidis.
//
// Keys are namespaced by a prefix (default "crm-oauth:"):
//
//	{prefix}token:{provider}   JSON TokenRecord, no expiry
//	{prefix}state:{provider}   JSON OAuthState, expires with the state TTL
//
// Use this backend when several connector replicas must share credentials.
package redis
