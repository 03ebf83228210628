package llm

import (
	"fmt"
	"strings"
)

// CoreferencePrompt generates a strict JSON-only prompt asking the model to
// resolve a pronoun or definite reference against a fixed candidate set.
// The candidate list is closed: the model may only answer with one of the
// given entity IDs or decline.
func CoreferencePrompt(mention string, recentTurns []string, candidates []CandidateEntity) string {
	var sb strings.Builder

	sb.WriteString("TASK: Resolve what a reference in a conversation points at.\n")
	sb.WriteString("OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanations.\n\n")

	sb.WriteString("RECENT CONVERSATION (oldest first):\n")
	for _, turn := range recentTurns {
		sb.WriteString("- ")
		sb.WriteString(turn)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nREFERENCE TO RESOLVE: %q\n\n", mention)

	sb.WriteString("CANDIDATE ENTITIES (you MUST pick from this list or decline):\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- id=%s name=%q type=%s\n", c.EntityID, c.Name, c.Type)
	}

	sb.WriteString(`
REQUIRED JSON STRUCTURE:
{"entity_id":"<one of the candidate ids or null>","confidence":<0.0-1.0>}

RULES:
1. Start with { and end with }
2. entity_id MUST be one of the listed ids, or null if none fits
3. confidence is your calibrated probability that the chosen entity is the referent
4. When in doubt, answer null rather than guess
`)

	return sb.String()
}

// ContradictionPrompt generates a strict JSON-only prompt asking whether two
// statements about the same subject can both be true.
func ContradictionPrompt(existing, proposed string) string {
	return fmt.Sprintf(`TASK: Decide whether two statements about the same subject contradict each other.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanations.

STATEMENT A (existing): %q
STATEMENT B (new): %q

A contradiction means A and B cannot both be true at the same time.
Statements that merely add detail, or describe different points in time
without conflicting, are NOT contradictions.

REQUIRED JSON STRUCTURE:
{"contradiction":true} or {"contradiction":false}
`, existing, proposed)
}
