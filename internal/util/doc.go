// Package util provides small helpers shared by the providers, storage and
// service packages: truncating secrets for logs and joining callback URLs.
package util
