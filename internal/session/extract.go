package session

import (
	"strings"

	"github.com/goccy/go-json"
)

// TokenExtractor locates the access token in the data of a successful login response
type TokenExtractor interface {
	Name() string
	Extract(data json.RawMessage) (string, bool)
}

// DefaultExtractors is the search order used by Login: a bare string body, then the token, access_token and jwt fields.
func DefaultExtractors() []TokenExtractor {
	return []TokenExtractor{
		BareStringExtractor{},
		FieldExtractor{Field: "token"},
		FieldExtractor{Field: "access_token"},
		FieldExtractor{Field: "jwt"},
	}
}

// BareStringExtractor accepts a response whose data is the token itself
type BareStringExtractor struct{}

func (BareStringExtractor) Name() string { return "bare-string" }

func (BareStringExtractor) Extract(data json.RawMessage) (string, bool) {
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// FieldExtractor accepts an object with the token in a named string field
type FieldExtractor struct {
	Field string
}

func (f FieldExtractor) Name() string { return "field:" + f.Field }

func (f FieldExtractor) Extract(data json.RawMessage) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false
	}
	raw, ok := obj[f.Field]
	if !ok {
		return "", false
	}
	return BareStringExtractor{}.Extract(raw)
}

// extractToken runs the chain in order and returns the first match
func extractToken(data json.RawMessage, chain []TokenExtractor) (token string, matchedBy string, ok bool) {
	if len(data) == 0 {
		return "", "", false
	}
	for _, e := range chain {
		if token, ok := e.Extract(data); ok {
			return token, e.Name(), true
		}
	}
	return "", "", false
}
