// Package api implements the HTTP REST API and WebSocket server for the
// purifier service.
//
// This package provides:
//   - REST endpoints for entry CRUD, live status and diagnostics
//   - control writes and service calls routed through the services executor
//   - WebSocket hub relaying coordinator status changes to clients
//   - JWT bearer authentication on mutating routes
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API sits between user interfaces and the orchestrator. Reads come from
// the loaded coordinators, falling back to the stored snapshot when an entry
// is not loaded. Writes go through the services executor so every call is
// breaker-protected and recorded in the service log. Status changes are
// pushed to WebSocket clients from coordinator listeners; nothing polls.
//
// # Security
//
// GET routes are open. Control writes and service calls need the operator
// role; creating, editing, reloading and deleting entries need admin. Tokens
// are issued out of band with `purifierd token`.
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB. Entries that failed their first
// refresh are listed with loaded=false and can be retried with a reload.
package api
