// Package repositories implements SQLite persistence for the client's durable state.
//
// Key Implementations:
//   - [TokenRepository] : Single-row credential storage backing the auth token store
//   - [DeviceRepository] : Cache of Spotify Connect devices the account has been seen on
//
// Sequence numbers provide stable, human-readable ordering for cached devices
// independent of UUIDs and timestamps. The [NextSequence] function atomically
// increments per-table sequence counters in dedicated sequence tables.
package repositories
