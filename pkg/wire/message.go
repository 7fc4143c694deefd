package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
// All DevPort messages use integer keys for efficiency.
const (
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyPayload    = 3
)

// Request represents a DevPort request message from client to endpoint.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32, nonzero
//	  2: operation,  // uint8: 1=Open, 2=Close, 3=Write, 4=Read, 5=Info
//	  3: payload     // operation-specific data
//	}
type Request struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Operation Operation `cbor:"2,keyasint"`
	Payload   any       `cbor:"3,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == 0 {
		return fmt.Errorf("messageId 0 is reserved")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response represents a DevPort response message from endpoint to client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32: matches request
//	  2: status,     // uint8: 0=success, or error code
//	  3: payload     // operation-specific response data
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Payload   any    `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// WritePayload represents the payload for a Write request.
//
// CBOR encoding:
//
//	{
//	  1: record  // bytes: one whole parameter record
//	}
type WritePayload struct {
	Record []byte `cbor:"1,keyasint"`
}

// WriteResponsePayload represents the payload for a Write response.
//
// CBOR encoding:
//
//	{
//	  1: written  // uint32: bytes accepted
//	}
type WriteResponsePayload struct {
	Written uint32 `cbor:"1,keyasint"`
}

// ReadResponsePayload represents the payload for a Read response.
//
// CBOR encoding:
//
//	{
//	  1: record  // bytes: the last accepted parameter record
//	}
type ReadResponsePayload struct {
	Record []byte `cbor:"1,keyasint"`
}

// InfoResponsePayload represents the payload for an Info response.
//
// CBOR encoding:
//
//	{
//	  1: state,     // uint8: lifecycle state
//	  2: holders,   // uint8: 0 or 1
//	  3: identity,  // uint32: registered identity (if registered)
//	  4: name,      // string: endpoint name
//	  5: class,     // string: class name (if bound)
//	  6: version    // string: protocol version
//	}
type InfoResponsePayload struct {
	State    uint8  `cbor:"1,keyasint"`
	Holders  uint8  `cbor:"2,keyasint"`
	Identity uint32 `cbor:"3,keyasint,omitempty"`
	Name     string `cbor:"4,keyasint,omitempty"`
	Class    string `cbor:"5,keyasint,omitempty"`
	Version  string `cbor:"6,keyasint,omitempty"`
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding:
//
//	{
//	  1: message,      // string: human-readable error message
//	  2: retryAfterMs  // uint32: suggested retry delay (busy only)
//	}
type ErrorPayload struct {
	Message      string `cbor:"1,keyasint,omitempty"`
	RetryAfterMs uint32 `cbor:"2,keyasint,omitempty"`
}

// rawMap normalizes a CBOR-decoded payload to integer-keyed form.
// After a decode round-trip the payload arrives as map[any]any with
// uint64 keys, not as the typed struct.
func rawMap(payload any) map[uint64]any {
	switch raw := payload.(type) {
	case map[uint64]any:
		return raw
	case map[any]any:
		m := make(map[uint64]any, len(raw))
		for k, v := range raw {
			if key, ok := k.(uint64); ok {
				m[key] = v
			}
		}
		return m
	default:
		return nil
	}
}

func rawUint32(m map[uint64]any, key uint64) uint32 {
	switch v := m[key].(type) {
	case uint64:
		return uint32(v)
	case int64:
		return uint32(v)
	default:
		return 0
	}
}

func rawString(m map[uint64]any, key uint64) string {
	s, _ := m[key].(string)
	return s
}

func rawBytes(m map[uint64]any, key uint64) []byte {
	b, _ := m[key].([]byte)
	return b
}

// ExtractWritePayload extracts a write payload from a raw CBOR-decoded
// value. Returns nil if there is no payload.
func ExtractWritePayload(payload any) *WritePayload {
	if payload == nil {
		return nil
	}
	if wp, ok := payload.(*WritePayload); ok {
		return wp
	}
	m := rawMap(payload)
	if m == nil {
		return nil
	}
	return &WritePayload{Record: rawBytes(m, 1)}
}

// ExtractWriteResponsePayload extracts a write response payload from a
// raw CBOR-decoded value.
func ExtractWriteResponsePayload(payload any) *WriteResponsePayload {
	if payload == nil {
		return nil
	}
	if wp, ok := payload.(*WriteResponsePayload); ok {
		return wp
	}
	m := rawMap(payload)
	if m == nil {
		return nil
	}
	return &WriteResponsePayload{Written: rawUint32(m, 1)}
}

// ExtractReadResponsePayload extracts a read response payload from a
// raw CBOR-decoded value.
func ExtractReadResponsePayload(payload any) *ReadResponsePayload {
	if payload == nil {
		return nil
	}
	if rp, ok := payload.(*ReadResponsePayload); ok {
		return rp
	}
	m := rawMap(payload)
	if m == nil {
		return nil
	}
	return &ReadResponsePayload{Record: rawBytes(m, 1)}
}

// ExtractInfoResponsePayload extracts an info response payload from a
// raw CBOR-decoded value.
func ExtractInfoResponsePayload(payload any) *InfoResponsePayload {
	if payload == nil {
		return nil
	}
	if ip, ok := payload.(*InfoResponsePayload); ok {
		return ip
	}
	m := rawMap(payload)
	if m == nil {
		return nil
	}
	return &InfoResponsePayload{
		State:    uint8(rawUint32(m, 1)),
		Holders:  uint8(rawUint32(m, 2)),
		Identity: rawUint32(m, 3),
		Name:     rawString(m, 4),
		Class:    rawString(m, 5),
		Version:  rawString(m, 6),
	}
}

// ExtractErrorPayload extracts an error payload from a raw CBOR-decoded
// value. Returns nil if there is no payload.
func ExtractErrorPayload(payload any) *ErrorPayload {
	if payload == nil {
		return nil
	}
	if ep, ok := payload.(*ErrorPayload); ok {
		return ep
	}
	m := rawMap(payload)
	if m == nil {
		return nil
	}
	return &ErrorPayload{
		Message:      rawString(m, 1),
		RetryAfterMs: rawUint32(m, 2),
	}
}
