// Package repositories implements SQL persistence for registered devices.
//
// Key Implementations:
//   - [DeviceRepository] : device registration and refresh token storage
//   - [Classify] : maps driver failures to a [StoreError] kind (refused, unreachable, auth, lost)
//
// The same queries run against SQLite (development, tests) and PostgreSQL (production);
// [Dialect.Rebind] adapts placeholders. Driver errors never leave the package unclassified,
// so callers can report a stable kind without leaking connection details.
package repositories
