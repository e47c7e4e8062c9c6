// Package rpc carries protocol.StreamService over gRPC.
//
// Messages are JSON documents wrapped in google.protobuf.BytesValue, so the
// package needs no protoc toolchain. Client implements
// protocol.StreamService against a remote node; Server exposes any
// protocol.StreamService. Protocol error codes travel as status details and
// come back as *protocol.Error.
package rpc
