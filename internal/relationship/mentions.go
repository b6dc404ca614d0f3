package relationship

import (
	"regexp"
	"strings"
)

var relationWords = []string{
	"mom", "mum", "mother", "dad", "father", "sister", "brother", "wife", "husband",
	"girlfriend", "boyfriend", "partner", "boss", "friend", "best friend", "roommate",
	"grandma", "grandpa", "grandmother", "grandfather", "aunt", "uncle", "cousin",
	"son", "daughter", "coworker", "colleague", "neighbour", "neighbor", "therapist",
}

// mentionRE matches "my <relation>" and an optional capitalised name after it,
// e.g. "my sister", "my friend Anna".
var mentionRE = regexp.MustCompile(`\b(?i:my\s+(` + strings.Join(longestFirst(relationWords), "|") + `))\b(?:\s+([A-Z][a-z]+))?`)

func longestFirst(words []string) []string {
	out := make([]string, len(words))
	copy(out, words)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// MentionedPeople returns the people text refers to, in order of first
// appearance. A name after the relation word wins over the relation itself.
func MentionedPeople(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range mentionRE.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		if m[2] != "" {
			name = m[2]
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// MentionDelta maps the tone of a message that names someone to a person delta.
// Every mention adds familiarity; clear tone moves warmth and trust.
func MentionDelta(tone float64) PersonDelta {
	d := PersonDelta{FamiliarityChange: 5}
	switch {
	case tone > 0.3:
		d.WarmthChange = 4
		d.TrustChange = 2
	case tone < -0.3:
		d.WarmthChange = -4
		d.TrustChange = -2
	}
	return d
}
