// Package auth issues and validates the bearer tokens of the HTTP API.
//
// Tokens are HS256 JWTs carrying a Role. Roles map to a fixed set of
// permissions (no database lookup):
//
//	reader  run catalog queries, read the schema
//	writer  reader + ad-hoc SQL
//	admin   writer + create indexes and drop objects
package auth
