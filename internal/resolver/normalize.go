package resolver

import "strings"

// Normalize produces the canonical lookup form of a mention or entity name:
// lowercased, whitespace collapsed to single spaces, surrounding punctuation
// trimmed. Both the exact-match stage and every stored normalized_name column
// use this form, so the comparison is symmetric.
func Normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,;:!?\"'()[]")
	}

	// Trimming can empty a token that was pure punctuation.
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}

	return strings.Join(out, " ")
}
