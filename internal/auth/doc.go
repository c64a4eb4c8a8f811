// Package auth issues and validates the bearer tokens that guard the API.
//
// Tokens are HS256 JWTs signed with the configured secret. Each carries a
// subject (the caller's name) and a role; the role maps to the
// permissions checked on mutating routes. There is no user database:
// tokens are minted by operators with the `purifierd token` command.
package auth
