package server

import "net/http"

// NewMux builds the loopback server's handler. Every route the handler
// announces is registered GET-only behind the given middleware chain; the
// authorization redirect is always a GET, so no other method reaches the
// handler.
func NewMux(handler Handler, middleware ...Middleware) http.Handler {
	wrapped := http.Handler(handler)
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}

	mux := http.NewServeMux()
	for _, route := range handler.Routes() {
		mux.Handle("GET "+route, wrapped)
	}

	return mux
}
