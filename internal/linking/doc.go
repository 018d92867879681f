// Package linking binds device ids to provider accounts.
//
// A device registers, is handed an authorization URL, and the provider redirects the
// user back with a code. The [Linker] verifies the device, trades the code for tokens
// exactly once and stores the refresh token. Afterwards the device fetches its refresh
// token, trades it for short-lived access tokens and reads its account's playback
// through the same [Linker].
//
// Every failure is an [*Error] with a [Kind] that maps to an HTTP status.
package linking
