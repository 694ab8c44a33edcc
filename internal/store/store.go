// Package store provides the rate limit record stores (memory, Redis, PostgreSQL)
// and the sweeper that expires records in stores without native expiry.
package store

// DefaultMaxLogEntries caps a sliding window log. The oldest entries are dropped first.
const DefaultMaxLogEntries = 10000
