// Package api implements docpipe's HTTP REST surface: the PDF operation
// endpoints, the auth and history endpoints, the tenant-scoped download
// handler, and the health/readiness/metrics endpoints.
//
// Routing uses the standard library's method-and-pattern ServeMux
// (Go 1.22+); every mutating route except register, login and refresh is
// wrapped by an auth middleware that accepts either a bearer JWT access
// token or an X-API-Key header and injects the resolved tenant into the
// request context.
package api
