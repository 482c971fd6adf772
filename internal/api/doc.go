// Package api implements the HTTP control surface and WebSocket status
// stream for the EtherNet/IP bridge.
//
// Endpoints (all under /api/v1):
//   - POST /bridge/start and POST /bridge/stop drive the supervisor
//   - GET /bridge/status returns the current run state and statistics
//   - GET /events lists the lifecycle event log
//   - GET and PUT /config read and replace the live configuration
//   - GET /ws streams bridge.status events
//
// /metrics is served at the root when a Prometheus handler is supplied.
//
// # Security
//
// When security.api_token_secret is set, start, stop and config require an
// HS256 bearer token minted by auth.GenerateToken. Status, events, health and the
// WebSocket stream are read-only and stay open.
package api
