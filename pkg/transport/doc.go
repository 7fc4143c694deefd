// Package transport provides the DevPort transport layer implementation.
//
// The transport layer handles:
//   - TCP connections between clients and an exposed endpoint
//   - Length-prefixed message framing
//   - Request/response matching by message ID
//   - Connection state management
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// DevPort endpoints serve a single host or trusted LAN segment, so the
// transport runs over plain TCP. Connection loss is the liveness
// signal: when a client that holds the endpoint disconnects, the
// server side observes EOF and releases the claim.
package transport
