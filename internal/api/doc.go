// Package api implements the administrative HTTP surface of iotlink.
//
// Endpoints (all under /api/v1):
//
//	GET  /health             liveness plus component health checks
//	GET  /status             association, session, update and memory snapshot
//	POST /broker/disconnect  force the broker session down
//	POST /broker/connect     clear a forced disconnect and attempt once
//	POST /reset              restart the agent after a short grace period
//	GET  /settings           persisted broker and address overrides
//	PUT  /settings           update overrides (applied on next restart)
//	GET  /events             connection lifecycle history
//
// Handlers never touch connectivity state directly: every admin call is
// marshalled onto the node's control goroutine through the Admin interface.
//
// # Security
//
// When an admin password hash is configured every endpoint except
// /health requires HTTP basic credentials for the "admin" account.
package api
