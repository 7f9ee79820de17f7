package normalize

import (
	"strings"
)

// Rules maps deprecated report field names to their current names.
var Rules = map[string]string{
	"destination_id": "data_stream_id",
	"event_type":     "data_stream_route",
}

// Normalize renames deprecated object keys in a raw report. Only string
// literals in key position (followed by a colon) are considered, so values
// and formatting pass through untouched. Input that is not JSON is scanned
// the same way and never rejected.
func Normalize(raw string) string {
	if !mayContainLegacyKey(raw) {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))

	i := 0
	for i < len(raw) {
		c := raw[i]
		if c != '"' {
			b.WriteByte(c)
			i++
			continue
		}

		end := closingQuote(raw, i+1)
		if end < 0 {
			// unterminated string, keep the rest verbatim
			b.WriteString(raw[i:])
			break
		}

		literal := raw[i+1 : end]
		if replacement, ok := Rules[literal]; ok && isKey(raw, end+1) {
			literal = replacement
		}
		b.WriteByte('"')
		b.WriteString(literal)
		b.WriteByte('"')
		i = end + 1
	}

	return b.String()
} // .Normalize

func mayContainLegacyKey(raw string) bool {
	for legacy := range Rules {
		if strings.Contains(raw, `"`+legacy+`"`) {
			return true
		}
	}
	return false
}

// closingQuote returns the index of the quote ending the string literal that
// starts at from, honoring backslash escapes.
func closingQuote(raw string, from int) int {
	for j := from; j < len(raw); j++ {
		switch raw[j] {
		case '\\':
			j++
		case '"':
			return j
		}
	}
	return -1
}

func isKey(raw string, from int) bool {
	for j := from; j < len(raw); j++ {
		switch raw[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}
