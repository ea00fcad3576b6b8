package session

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantToken   string
		wantMatcher string
		wantOK      bool
	}{
		{name: "bare string", data: `"abc"`, wantToken: "abc", wantMatcher: "bare-string", wantOK: true},
		{name: "token field", data: `{"token":"abc"}`, wantToken: "abc", wantMatcher: "field:token", wantOK: true},
		{name: "access_token field", data: `{"access_token":"abc","token_type":"Bearer"}`, wantToken: "abc", wantMatcher: "field:access_token", wantOK: true},
		{name: "jwt field", data: `{"jwt":"abc"}`, wantToken: "abc", wantMatcher: "field:jwt", wantOK: true},
		{name: "token preferred over access_token", data: `{"access_token":"b","token":"a"}`, wantToken: "a", wantMatcher: "field:token", wantOK: true},
		{name: "empty token field skipped", data: `{"token":"","jwt":"c"}`, wantToken: "c", wantMatcher: "field:jwt", wantOK: true},
		{name: "non string token", data: `{"token":42}`, wantOK: false},
		{name: "unrelated object", data: `{"unrelated":"x"}`, wantOK: false},
		{name: "empty string", data: `""`, wantOK: false},
		{name: "array", data: `["abc"]`, wantOK: false},
		{name: "no data", data: ``, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, matchedBy, ok := extractToken(json.RawMessage(tt.data), DefaultExtractors())
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
			if matchedBy != tt.wantMatcher {
				t.Errorf("matchedBy = %q, want %q", matchedBy, tt.wantMatcher)
			}
		})
	}
}

func TestExtractToken_CustomChain(t *testing.T) {
	chain := []TokenExtractor{FieldExtractor{Field: "sessionToken"}}

	token, _, ok := extractToken(json.RawMessage(`{"sessionToken":"s1","token":"t1"}`), chain)
	if !ok || token != "s1" {
		t.Errorf("extractToken() = %q, %v, want s1", token, ok)
	}
	if _, _, ok := extractToken(json.RawMessage(`{"token":"t1"}`), chain); ok {
		t.Error("custom chain fell back to the default extractors")
	}
}
