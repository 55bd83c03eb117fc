// Package client talks to the storekeeper backend.
//
// # Overview
//
// Client is the transport-agnostic contract used by the sync engine: Ping,
// Login, Push, Pull and presigned asset URLs. GRPCClient implements it over
// gRPC with the JSON codec from package rpc. It injects the access token
// through a unary interceptor, refreshes an expired token once and retries,
// and maps gRPC status codes to sentinel errors.
//
// ChangeFeed subscribes to the server's websocket changefeed, which
// announces rows written by other devices.
//
// # Error Handling
//
// Callers match errors with errors.Is / errors.As:
//
//   - ErrUnavailable: the backend cannot be reached; retry later.
//   - ErrUnauthorized: credentials are missing or rejected.
//   - *ConflictError: a push was refused because the server holds a newer
//     version; it carries the server's row.
package client
