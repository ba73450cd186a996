// Package auth covers tenant authentication: password hashing, JWT
// access/refresh token issuance and verification, and API key minting
// and lookup.
package auth
