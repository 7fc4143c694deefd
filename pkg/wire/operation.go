package wire

// Operation represents a DevPort protocol operation.
type Operation uint8

const (
	// OpOpen claims exclusive use of the endpoint.
	OpOpen Operation = 1

	// OpClose releases a previously claimed endpoint.
	OpClose Operation = 2

	// OpWrite submits a parameter record to the endpoint.
	OpWrite Operation = 3

	// OpRead retrieves the last accepted parameter record.
	OpRead Operation = 4

	// OpInfo reports endpoint state without requiring a session.
	OpInfo Operation = 5
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpOpen:
		return "Open"
	case OpClose:
		return "Close"
	case OpWrite:
		return "Write"
	case OpRead:
		return "Read"
	case OpInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a valid DevPort operation.
func (o Operation) IsValid() bool {
	return o >= OpOpen && o <= OpInfo
}
