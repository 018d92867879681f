// Package server provides HTTP routing, middleware, and the handlers of the device linking API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] for paths and dispatches on method itself,
// answering 405 with an Allow header when a path exists but the method does not.
//
// # Handlers
//
// Handlers implement the [Handler] interface and return their [Route] list, keeping route definitions
// next to the code that serves them:
//
//   - [LinkHandler]: POST /register, GET /authorize-url, GET|POST /credential, POST /token/refresh, GET /now-playing
//   - [OAuthHandler]: GET /oauth/login, GET|POST /oauth/callback
//   - [HealthHandler]: GET /health, GET /ready
//
// # Errors
//
// Failures are JSON objects with an "error" kind and a "message". Provider failures add
// "providerStatus" and the provider body under "details". Storage failures only report the
// classified cause, never driver output.
//
// Browser requests to the OAuth routes get an HTML result page (or a redirect to the configured
// success URL) instead of JSON.
package server
