package vision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// phonePattern matches North American numbers in the common renderings:
// 555-123-4567, (555) 123-4567, 555.123.4567, +1 555 123 4567.
var phonePattern = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?(\d{3})\)?[\s.-]?(\d{3})[\s.-]?(\d{4})`)

// ExtractPhone pulls the page body text and returns the phone number most
// likely associated with the query, formatted as (XXX) XXX-XXXX. When several
// numbers appear, the one closest to the query's tokens wins.
func ExtractPhone(ctx context.Context, driver browser.Driver, query string) (string, error) {
	body, err := driver.GetText(ctx, "body", 15*time.Second)
	if err != nil {
		return "", err
	}
	return ExtractPhoneFromText(body, query)
}

// ExtractPhoneFromText is the pure scoring half of ExtractPhone.
func ExtractPhoneFromText(text, query string) (string, error) {
	matches := phonePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", nerrors.NotFound("vision.extract_phone", "no phone number on page")
	}

	tokens := significantTokens(query)
	lower := strings.ToLower(text)

	bestIdx, bestScore := 0, -1
	for i, m := range matches {
		score := proximityScore(lower, m[0], tokens)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	m := matches[bestIdx]
	area := text[m[2]:m[3]]
	exchange := text[m[4]:m[5]]
	line := text[m[6]:m[7]]
	return fmt.Sprintf("(%s) %s-%s", area, exchange, line), nil
}

// proximityScore counts query tokens appearing within a window around the
// match, weighting closer occurrences higher.
func proximityScore(lower string, pos int, tokens []string) int {
	const window = 200
	start := pos - window
	if start < 0 {
		start = 0
	}
	end := pos + window
	if end > len(lower) {
		end = len(lower)
	}
	region := lower[start:end]

	score := 0
	for _, tok := range tokens {
		idx := strings.Index(region, tok)
		if idx < 0 {
			continue
		}
		distance := idx + start - pos
		if distance < 0 {
			distance = -distance
		}
		score += window - distance
	}
	return score
}

var stopWords = map[string]bool{
	"the": true, "for": true, "of": true, "a": true, "an": true,
	"phone": true, "number": true, "call": true, "look": true, "up": true,
	"find": true, "what": true, "is": true,
}

func significantTokens(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, ".,?!\"'")
		if len(tok) < 2 || stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
