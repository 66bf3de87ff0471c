// Package auth authenticates the node's single operator account.
//
// The operator is configured, not stored: a username, an Argon2id PHC
// password hash and an optional TOTP secret. A successful login yields a
// short-lived HS256 access token that the API validates by signature only.
package auth
