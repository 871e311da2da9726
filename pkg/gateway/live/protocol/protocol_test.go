package protocol

import "testing"

func TestDecodeEndOfAudio(t *testing.T) {
	for _, raw := range []string{
		`{"type":"end_of_audio"}`,
		`end_of_audio`,
		`  end_of_audio  `,
	} {
		msg, err := DecodeClientMessage([]byte(raw))
		if err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if _, ok := msg.(ClientEndOfAudio); !ok {
			t.Fatalf("decode %q: got %T, want ClientEndOfAudio", raw, msg)
		}
	}
}

func TestDecodeConfigKeys(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"config_keys","keys":{"gemini":"g1","murf":"m1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	keys, ok := msg.(ClientConfigKeys)
	if !ok {
		t.Fatalf("got %T, want ClientConfigKeys", msg)
	}
	if keys.Keys[KeyGemini] != "g1" || keys.Keys[KeyMurf] != "m1" {
		t.Fatalf("unexpected keys: %v", keys.Keys)
	}
	if names := keys.RedactedForLog(); len(names) != 2 {
		t.Fatalf("redacted names = %v", names)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"missing type", `{"keys":{"a":"b"}}`},
		{"unknown type", `{"type":"interrupt"}`},
		{"config keys empty", `{"type":"config_keys","keys":{}}`},
		{"config keys blank name", `{"type":"config_keys","keys":{" ":"v"}}`},
		{"config keys blank value", `{"type":"config_keys","keys":{"gemini":" "}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.raw))
			if err == nil {
				t.Fatalf("decode %q succeeded, want error", tt.raw)
			}
			de, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("error type = %T, want *DecodeError", err)
			}
			if de.Code != "bad_request" {
				t.Fatalf("code = %q, want bad_request", de.Code)
			}
		})
	}
}

func TestDecodeErrorString(t *testing.T) {
	withParam := &DecodeError{Code: "bad_request", Message: "bad value", Param: "keys.gemini"}
	if got := withParam.Error(); got != "bad value (keys.gemini)" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &DecodeError{Code: "bad_request", Message: "bad frame"}
	if got := bare.Error(); got != "bad frame" {
		t.Fatalf("Error() = %q", got)
	}
}
