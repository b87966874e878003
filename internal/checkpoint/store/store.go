// Package store persists token records.
//
// Error Contract (all implementations):
//   - FindByToken returns sentinel.ErrNotFound when no record exists.
//   - GetOrCreate and Execute never return ErrNotFound; a missing record is
//     materialised as the all-false default first.
//   - An error returned by validate passes through unchanged and nothing is written.
//   - RedisStore returns sentinel.ErrConflict once optimistic retries are exhausted.
package store
