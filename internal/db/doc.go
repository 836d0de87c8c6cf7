// Package db opens PostgreSQL connections authenticated with short-lived
// cloud IAM tokens instead of stored passwords.
//
// A TokenConnector composes three capabilities:
//
//   - CredentialResolver finds the caller's ambient identity and region
//     (environment, shared profile, workload identity; first source wins).
//   - TokenIssuer turns that identity into a token scoped to one
//     host, port and database user.
//   - Driver performs the ordinary username/password connect with the token
//     in the password slot.
//
// Every connection attempt mints its own token. Tokens are never cached, and
// the connector refuses to dial unless the connection config requires TLS.
package db
