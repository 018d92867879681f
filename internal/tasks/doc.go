// Package tasks runs the device side of the linking flow against a linking server.
//
// # Polling
//
// A [Poller] does what a linked device does in its main loop:
//
//  1. Fetch the stored refresh token once (GET /credential)
//  2. Trade it for an access token (POST /token/refresh) when none is cached or the cached one
//     expires within the refresh skew
//  3. Read playback (GET /now-playing), refreshing once and retrying when the server answers 401
//
// Cycles are paced by a [rate.Limiter]. A device the server does not know as linked stops the
// loop with [ErrNotLinked]; any other failure is reported and retried on the next cycle.
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent on an optional channel without blocking, so a slow consumer
// never stalls polling.
package tasks
