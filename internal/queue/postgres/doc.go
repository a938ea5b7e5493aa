// Package postgres implements queue.Repository on a shared PostgreSQL
// database. Several worker hosts can claim from the same tables: claims lock
// the oldest eligible row with FOR UPDATE SKIP LOCKED, so concurrent claimers
// never block on or share a meeting.
package postgres
