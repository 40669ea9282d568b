// Package gateway wires the zap-gateway components together and exposes the
// HTTP API.
//
// # Endpoints
//
//	POST   /api/sessions               create a session and start pairing
//	GET    /api/sessions               list session snapshots
//	GET    /api/sessions/{id}          one session snapshot
//	DELETE /api/sessions/{id}          stop and remove a session
//	GET    /api/sessions/{id}/qr       current pairing code (only while pairing)
//	POST   /api/sessions/{id}/messages send a message through a ready session
//	GET    /api/events                 websocket event feed (?session_id= filters)
//	GET    /health                     liveness
//	GET    /health/ready               readiness (503 until restore completes)
//
// API routes require a bearer JWT when auth.jwt_secret is configured; health
// endpoints are always open.
//
// # Error mapping
//
// Registry errors map onto HTTP statuses: missing id 400, duplicate 409, not
// found 404, not ready 409, unregistered recipient 422, driver failure 502.
package gateway
