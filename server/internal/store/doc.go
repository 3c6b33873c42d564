// Package store keeps the most recently relayed events in memory so that
// GET /api/v1/events can show what went over the wire. Entries expire after
// a TTL and the buffer is capped; it is not a durable log.
package store
