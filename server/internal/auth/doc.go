// Package auth checks the shared access token presented by stations and
// REST callers.
//
// Websocket clients send the token as ?token=... because browsers cannot
// set headers on the handshake; REST callers may use Authorization: Bearer
// instead. Checker.Allow does the comparison (constant time) and
// Checker.Middleware wraps REST handlers with a 401 JSON response. The
// websocket hub calls Allow itself so it can accept the socket first and
// then close it with code 4401, which clients can tell apart from a network
// failure.
//
// Mode "none" disables checking. In mode "token" an unset key rejects every
// request.
package auth
