package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeEndpointTXT(t *testing.T) {
	info := &EndpointTXT{
		Identity: 42,
		Class:    "devport",
		Version:  "1.0",
	}

	txt := EncodeEndpointTXT(info)

	if txt[TXTKeyIdentity] != "42" {
		t.Errorf("id = %q, want \"42\"", txt[TXTKeyIdentity])
	}
	if txt[TXTKeyClass] != "devport" {
		t.Errorf("cls = %q, want \"devport\"", txt[TXTKeyClass])
	}
	if txt[TXTKeyVersion] != "1.0" {
		t.Errorf("pv = %q, want \"1.0\"", txt[TXTKeyVersion])
	}
}

func TestEncodeEndpointTXTWithoutOptional(t *testing.T) {
	info := &EndpointTXT{
		Identity: 7,
		Class:    "devport",
	}

	txt := EncodeEndpointTXT(info)

	// pv should not be present when Version is empty
	if _, ok := txt[TXTKeyVersion]; ok {
		t.Error("pv should not be present when Version is empty")
	}
}

func TestDecodeEndpointTXTRoundtrip(t *testing.T) {
	info := &EndpointTXT{
		Identity: 4294967295,
		Class:    "sensor",
		Version:  "1.0",
	}

	decoded, err := DecodeEndpointTXT(EncodeEndpointTXT(info))
	if err != nil {
		t.Fatalf("DecodeEndpointTXT() error = %v", err)
	}

	if decoded.Identity != info.Identity {
		t.Errorf("Identity = %d, want %d", decoded.Identity, info.Identity)
	}
	if decoded.Class != info.Class {
		t.Errorf("Class = %q, want %q", decoded.Class, info.Class)
	}
	if decoded.Version != info.Version {
		t.Errorf("Version = %q, want %q", decoded.Version, info.Version)
	}
}

func TestDecodeEndpointTXTInvalid(t *testing.T) {
	tests := []struct {
		name    string
		txt     TXTRecordMap
		wantErr error
	}{
		{"MissingIdentity", TXTRecordMap{"cls": "devport"}, ErrMissingRequired},
		{"MissingClass", TXTRecordMap{"id": "42"}, ErrMissingRequired},
		{"EmptyClass", TXTRecordMap{"id": "42", "cls": ""}, ErrMissingRequired},
		{"IdentityZero", TXTRecordMap{"id": "0", "cls": "devport"}, ErrInvalidTXTRecord},
		{"IdentityNonNumeric", TXTRecordMap{"id": "abc", "cls": "devport"}, ErrInvalidTXTRecord},
		{"IdentityOverflow", TXTRecordMap{"id": "4294967296", "cls": "devport"}, ErrInvalidTXTRecord},
		{"IdentityNegative", TXTRecordMap{"id": "-1", "cls": "devport"}, ErrInvalidTXTRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEndpointTXT(tt.txt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeEndpointTXT() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTXTRecordsToStrings(t *testing.T) {
	txt := TXTRecordMap{
		"id":  "42",
		"cls": "devport",
	}

	strs := TXTRecordsToStrings(txt)
	if len(strs) != 2 {
		t.Fatalf("len = %d, want 2", len(strs))
	}

	found := make(map[string]bool)
	for _, s := range strs {
		found[s] = true
	}
	if !found["id=42"] {
		t.Error("missing \"id=42\"")
	}
	if !found["cls=devport"] {
		t.Error("missing \"cls=devport\"")
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  TXTRecordMap
	}{
		{
			name:  "Basic",
			input: []string{"id=42", "cls=devport"},
			want:  TXTRecordMap{"id": "42", "cls": "devport"},
		},
		{
			name:  "ValueWithEquals",
			input: []string{"note=a=b"},
			want:  TXTRecordMap{"note": "a=b"},
		},
		{
			name:  "BooleanFlag",
			input: []string{"flag"},
			want:  TXTRecordMap{"flag": ""},
		},
		{
			name:  "EmptyStringIgnored",
			input: []string{""},
			want:  TXTRecordMap{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringsToTXTRecords(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName("devport0"); err != nil {
		t.Errorf("ValidateInstanceName(\"devport0\") error = %v", err)
	}
	if err := ValidateInstanceName(strings.Repeat("a", 63)); err != nil {
		t.Errorf("ValidateInstanceName(63 chars) error = %v", err)
	}
	if err := ValidateInstanceName(strings.Repeat("a", 64)); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("ValidateInstanceName(64 chars) error = %v, want ErrInstanceNameTooLong", err)
	}
	if err := ValidateInstanceName(""); err == nil {
		t.Error("ValidateInstanceName(\"\") should fail")
	}
}
