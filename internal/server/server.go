// Package server hosts the loopback HTTP listener for the OAuth callback.
//
// The listener exists only for the duration of a login: the browser lands on
// /callback, the [CallbackHandler] validates the request and hands the
// authorization code back to the CLI over a channel, and the server shuts
// down. The code exchange itself happens elsewhere; this package never sees
// the PKCE verifier.
package server

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}
