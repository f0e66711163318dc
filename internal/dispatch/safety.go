package dispatch

import (
	"regexp"
)

// SafetyGate screens utterances for irreversible verbs before any skill
// runs. A hit demands an explicit confirmation on the originating channel.
type SafetyGate struct {
	patterns []*regexp.Regexp
}

// defaultRiskyPatterns cover destructive and outward-facing verbs. Word
// boundaries keep "deleted my account yesterday" style retellings from
// matching on substrings of longer words.
var defaultRiskyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdelete\b`),
	regexp.MustCompile(`(?i)\bremove\b`),
	regexp.MustCompile(`(?i)\bwipe\b`),
	regexp.MustCompile(`(?i)\bsend\b`),
	regexp.MustCompile(`(?i)\bpay\b`),
	regexp.MustCompile(`(?i)\btransfer\b`),
	regexp.MustCompile(`(?i)rm\s+-rf`),
}

// NewSafetyGate creates a gate with the default patterns plus any extras.
func NewSafetyGate(extra ...*regexp.Regexp) *SafetyGate {
	return &SafetyGate{patterns: append(append([]*regexp.Regexp(nil), defaultRiskyPatterns...), extra...)}
}

// Risky reports whether the utterance needs confirmation, and which pattern
// tripped.
func (g *SafetyGate) Risky(utterance string) (bool, string) {
	for _, p := range g.patterns {
		if loc := p.FindString(utterance); loc != "" {
			return true, loc
		}
	}
	return false, ""
}
