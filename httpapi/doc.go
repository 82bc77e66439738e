// Package httpapi exposes the handoff over HTTP with echo.
//
// The central application mounts GET /sso/tenants/:tenant, which turns the
// caller's central session into a handoff URL and redirects to it. Each
// tenant application mounts GET /sso/start, which exchanges the code,
// establishes a local session and redirects to the intended page. Codes
// travel only in that one redirect and are never logged.
package httpapi
