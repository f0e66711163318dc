// Package jsonx wraps the JSON implementation used across NERVA and provides
// the strict-then-repair parsing ladder for LLM structured output.
package jsonx

import "github.com/goccy/go-json"

// Thin wrapper so hot paths can swap JSON implementations in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

type RawMessage = json.RawMessage
