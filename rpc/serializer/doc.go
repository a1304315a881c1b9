// Package serializer converts common.Message values to bytes and back for the
// RPC transports.
//
// Key Components:
//
//   - IRPCSerializer: the interface all serializers implement.
//
//   - binarySerializerImpl: a custom format. A 16 bit flag field marks which
//     fields are present, so unset fields cost nothing on the wire. It is the
//     only format that keeps the difference between nil and empty slices.
//
//   - jsonSerializerImpl: JSON, readable and handy for debugging.
//
//   - gobSerializerImpl: Go's gob encoding. It is the slowest of the three and is
//     kept for comparison in the benchmarks.
//
// ByName returns a serializer by its configuration name (binary, json, gob).
// Client and server must use the same serializer. Input that can not be decoded
// is reported as an error wrapping ErrMalformed.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
package serializer
