// Package http implements the HTTP transport of the gateway.
//
// Server:
//
//   - POST / carries one serialized request message. The caller authenticates
//     with HTTP basic auth on every request. The server answers with the
//     serialized response message and maps the handler status to the HTTP
//     status (200, 400, 401, 403, 500, 503).
//
//   - A session cookie (DGATE_SESSION) ties requests of one client together.
//     Cursors live in the session, so a client has to send the cookie back to
//     page through results. A cookie is only honored for the user it was
//     issued to. Sessions idle for longer than the session timeout are
//     forgotten.
//
//   - GET /metrics exposes all metrics in the Prometheus text format.
//
//   - With log level debug every request is logged with its status and duration.
//
// Client:
//
//	The client keeps the session cookie in a cookie jar, selects endpoints
//	round robin and retries requests that failed on the network level.
//	Responses that are not OK are returned as *transport.StatusError.
package http
