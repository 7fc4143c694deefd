package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeEndpointTXT creates TXT records for an exposed endpoint.
func EncodeEndpointTXT(info *EndpointTXT) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyIdentity] = strconv.FormatUint(uint64(info.Identity), 10)
	txt[TXTKeyClass] = info.Class

	// Optional fields
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	return txt
}

// DecodeEndpointTXT parses TXT records from endpoint discovery.
func DecodeEndpointTXT(txt TXTRecordMap) (*EndpointTXT, error) {
	info := &EndpointTXT{}

	// Parse identity (required)
	idStr, ok := txt[TXTKeyIdentity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyIdentity)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: invalid identity %q", ErrInvalidTXTRecord, idStr)
	}
	info.Identity = uint32(id)

	// Parse class (required)
	info.Class, ok = txt[TXTKeyClass]
	if !ok || info.Class == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyClass)
	}

	// Optional fields
	info.Version = txt[TXTKeyVersion]

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, the format mDNS libraries expect.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
