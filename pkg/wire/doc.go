// Package wire defines the CBOR wire format for DevPort messages.
//
// DevPort uses CBOR (RFC 8949) with integer keys for efficient encoding.
// All messages are length-prefixed and transmitted over TCP.
//
// # Message Types
//
// There are two message types:
//   - Request: Client to endpoint (Open, Close, Write, Read, Info)
//   - Response: Endpoint to client (success or error status)
//
// Every request carries a nonzero message ID; the response echoes it,
// so a client can match responses to requests.
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. The key mappings are
// defined as constants in this package.
package wire
