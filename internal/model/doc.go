// Package model calls the inference service that writes AI replies.
//
// Every failure is returned as *Error with a Kind, so callers can tell an
// unreachable server from a slow one or a model that has not been pulled.
package model
