// Package directory answers the two questions a handoff asks of the central
// database: is this user still a member of this tenant, and which host
// serves the tenant.
//
// [Postgres] reads the central database through pgx. [Static] serves both
// answers from memory for local runs and tests.
package directory
