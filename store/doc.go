// Package store persists refresh tokens durably and is the authority on
// their validity. The Redis revocation cache may be flushed or down at any
// time; every verdict that matters is derivable from this package alone.
//
// Rows are soft-deleted: revocation and logout mark rows, FindActive still
// returns revoked rows so the caller can distinguish "revoked" from
// "unknown", and PurgeExpired hard-deletes rows past retention.
package store
