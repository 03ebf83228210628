package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// coreferenceResponse is the JSON shape the coreference prompt demands.
// entity_id is a pointer so that an explicit null decodes cleanly.
type coreferenceResponse struct {
	EntityID   *string `json:"entity_id"`
	Confidence float64 `json:"confidence"`
}

// contradictionResponse is the JSON shape the contradiction prompt demands.
type contradictionResponse struct {
	Contradiction bool `json:"contradiction"`
}

// extractJSON extracts the first complete JSON object from a string that may
// contain extra text. Models sometimes wrap output in markdown fences or add
// prose despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	// Unbalanced braces; return from start and let the decoder report it.
	return text[start:]
}

// parseCoreference decodes a coreference verdict. A null or empty entity_id
// is a valid "declined" answer, not an error.
func parseCoreference(raw string) (*Coreference, error) {
	var resp coreferenceResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("%w: parse coreference response: %v", ErrProvider, err)
	}

	if resp.EntityID == nil || *resp.EntityID == "" || *resp.EntityID == "null" {
		return &Coreference{Resolved: false}, nil
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return nil, fmt.Errorf("%w: coreference confidence %.4f outside [0,1]", ErrProvider, resp.Confidence)
	}

	return &Coreference{
		Resolved:   true,
		EntityID:   *resp.EntityID,
		Confidence: resp.Confidence,
	}, nil
}

// parseContradiction decodes a contradiction verdict.
func parseContradiction(raw string) (bool, error) {
	var resp contradictionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return false, fmt.Errorf("%w: parse contradiction response: %v", ErrProvider, err)
	}
	return resp.Contradiction, nil
}
