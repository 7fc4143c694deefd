package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusBusy indicates another client holds the endpoint.
	StatusBusy Status = 1

	// StatusNotExposed indicates the endpoint is not currently exposed.
	StatusNotExposed Status = 2

	// StatusRecordSize indicates a write that was not a whole record.
	StatusRecordSize Status = 3

	// StatusNoSession indicates the operation requires an open session.
	StatusNoSession Status = 4

	// StatusInvalidOperation indicates an unknown or malformed request.
	StatusInvalidOperation Status = 5

	// StatusInternal indicates an endpoint-side failure.
	StatusInternal Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusBusy:
		return "BUSY"
	case StatusNotExposed:
		return "NOT_EXPOSED"
	case StatusRecordSize:
		return "RECORD_SIZE"
	case StatusNoSession:
		return "NO_SESSION"
	case StatusInvalidOperation:
		return "INVALID_OPERATION"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
