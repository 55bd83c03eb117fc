// Package rpc defines the wire contract between the storekeeper client and
// server: request/response types, the JSON gRPC codec and a hand-written
// grpc.ServiceDesc for the rows service.
//
// Messages are plain Go structs encoded as JSON. Calls must select the codec
// with grpc.CallContentSubtype(CodecName); the server resolves it from the
// registry populated by this package's init.
package rpc
