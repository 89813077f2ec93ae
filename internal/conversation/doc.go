// Package conversation orchestrates chat exchanges between users and the model.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the message
// store and model client. It owns every rule about what a valid exchange is
// and in what order its side effects happen.
//
// # Service
//
// The Service coordinates conversation operations:
//
//	svc := conversation.New(store, client, conversation.DefaultConfig(), logger)
//
// Key operations:
//
//   - SendMessage(ctx, req): record the user message, call the model, record the reply
//   - ClearSession(ctx, id): abandon any in-flight call, then delete the session
//   - ListMessages(ctx, id): history of one session, or of all sessions
//   - ListSessions(ctx): derived session summaries, most recent first
//
// # Exchange Ordering
//
// For one SendMessage:
//
//  1. Validate content and session ID (no side effects on failure)
//  2. Admit the call, or fail with ErrBusy if the session already has one
//  3. Persist the user message
//  4. Send the last MaxContextMessages messages to the model
//  5. Persist the reply, unless the session was cleared meanwhile
//
// A failed model call leaves the user message in place. With StrictRollback
// the user message is deleted instead.
//
// # Sessions
//
// Sessions have no storage of their own. A session exists while it has at
// least one message; its title, preview and timestamps are recomputed from
// the messages on every read.
//
// # Event Broadcasting
//
// Every durable change is published on the EventBroadcaster so a client
// that navigated away from a session can reconcile replies that land later:
//
//	ch, _ := svc.Events().Subscribe(ctx, sessionID)
//
// Events: message, cleared, busy, idle, abandoned, failed.
package conversation
