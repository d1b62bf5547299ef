// Package core contains the account session engine: the single-owner handle
// contract, error kinds, token cache and refresh policy, OAuth flow control,
// and the login store contracts the sync adapter is built on. Transport and
// storage adapters depend on this package; core depends on neither.
package core
