// Package params defines the fixed-layout parameter record exchanged with a
// DevPort endpoint and its binary codec. Records travel whole: a transfer
// whose length is not exactly RecordSize is rejected without consuming or
// producing any bytes.
package params

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordSize is the exact encoded size of a Record in bytes.
const RecordSize = 12

// ErrRecordSize indicates a transfer whose byte length does not equal
// RecordSize. The transfer is rejected whole; nothing is consumed.
var ErrRecordSize = errors.New("parameter record size mismatch")

// Record is the fixed-size parameter block written to and read from an
// endpoint. TargetAddr is an opaque 32-bit handle naming the command's
// target; it is carried verbatim and never dereferenced by this library.
// Command values are not validated here either; dispatch on unknown
// commands is the endpoint's concern.
type Record struct {
	Command    uint32
	TargetAddr uint32
	Length     uint32
}

// Decode parses a Record from exactly RecordSize bytes laid out big-endian
// as Command, TargetAddr, Length. Any other input length returns
// ErrRecordSize.
func Decode(data []byte) (Record, error) {
	if len(data) != RecordSize {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(data), RecordSize)
	}
	return Record{
		Command:    binary.BigEndian.Uint32(data[0:4]),
		TargetAddr: binary.BigEndian.Uint32(data[4:8]),
		Length:     binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// Encode serializes the record into a fresh RecordSize-byte slice.
// It cannot fail: every in-memory Record has a valid encoding.
func Encode(r Record) []byte {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint32(buf[0:4], r.Command)
	binary.BigEndian.PutUint32(buf[4:8], r.TargetAddr)
	binary.BigEndian.PutUint32(buf[8:12], r.Length)
	return buf
}

// String formats the record for log output.
func (r Record) String() string {
	return fmt.Sprintf("cmd=%d addr=0x%x len=%d", r.Command, r.TargetAddr, r.Length)
}
