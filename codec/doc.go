// Package codec defines the binary shapes exchanged across the delegate
// boundary: the generic [Value] union, positional argument arrays, call
// payloads and replies.
//
// Everything is CBOR with Core Deterministic Encoding. Payloads, replies
// and standalone values carry a leading [Version] byte; a decoder that
// sees a different version fails with [ErrVersion] instead of guessing.
//
// Call payload:
//
//	[Version][4-byte Selector][CBOR array of arguments]
//
// Reply:
//
//	[Version][Status][CBOR payload]
//
// A [StatusFailure] reply carries a [Failure].
package codec
