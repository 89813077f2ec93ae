// Package gateway exposes the chat service over HTTP.
//
// # Overview
//
// The gateway wires the message store, the model client and the
// conversation service together and serves them on a TCP address or, when
// Tailscale is enabled, on a tsnet node in the tailnet.
//
// # Endpoints
//
//   - GET /health: liveness
//   - GET /health/ready: readiness plus sessions with a model call in flight
//   - GET /api/messages?sessionId=X&format=html: message history
//   - POST /api/messages: send a message and wait for the reply
//   - DELETE /api/messages?sessionId=X: clear one session, or all
//   - GET /api/sessions: session summaries, most recent first
//   - GET /api/sessions/{id}: one summary plus its busy flag
//   - GET /api/sessions/{id}/events: Server-Sent Events for the session
//
// Errors are JSON objects with "error" (a short title) and "message".
//
// # Status Codes
//
//	400  invalid content or session ID
//	409  session busy, or repeated Idempotency-Key
//	410  session cleared while its reply was generated
//	404  model not found, or session not found
//	502  other model failure
//	503  model service unreachable
//	504  model call timed out
//	500  storage failure
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown waits up to five seconds for in-flight requests.
package gateway
