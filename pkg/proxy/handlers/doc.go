// Package handlers provides the gateway's catch-all request handler.
//
// GatewayHandler serves every path of the gateway port. Each request goes
// through the same steps:
//
//  1. Take the current routing snapshot. The request keeps it until it
//     completes, so a reload never changes routing mid-request.
//  2. Check the gateway key. Failures answer 401 and are logged.
//  3. Resolve the longest matching base path. Misses answer 404 and are
//     logged with no upstream.
//  4. Buffer the body so it can be replayed on retries and fallbacks.
//  5. Open a pending log entry, forward along the upstream chain and
//     finalize the entry with the terminal status.
//
// Errors are reported as {"error": "<message>"} JSON bodies.
package handlers
