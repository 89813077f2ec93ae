// Package dedupe tracks idempotency keys so a client can safely retry a
// send without the message being processed twice within a time window.
package dedupe
