// Package server runs the short-lived local listener that completes a login.
//
// # Flow
//
// The backend performs the provider OAuth dance and finally redirects the
// browser to http://host:port/callback?state=...&token=... on this machine.
// [CallbackServer] listens on that address, [CallbackHandler] checks the
// state token generated for this login and hands the bearer token back on a
// channel. Only the first callback is processed.
//
// # Middleware
//
// The callback route is wrapped with [Chain]: [RequestLogger] logs each request
// without its query string and [NoStore] marks the response uncacheable.
package server
