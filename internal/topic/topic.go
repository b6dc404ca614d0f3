// Package topic decides whether two short conversational topics refer to the
// same thing. Matching is exact-or-containment only: no token overlap.
package topic

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinContainmentLen is the shortest normalized topic allowed to match by containment.
const MinContainmentLen = 5

// Matcher compares topics. The zero value is the strict matcher.
type Matcher struct {
	synonyms map[string]string
}

// NewMatcher returns a matcher that folds words through synonyms after
// normalization (e.g. "picture" -> "photo"). Keys and values are normalized words.
func NewMatcher(synonyms map[string]string) *Matcher {
	m := &Matcher{synonyms: make(map[string]string, len(synonyms))}
	for k, v := range synonyms {
		m.synonyms[stripPlural(strings.ToLower(k))] = stripPlural(strings.ToLower(v))
	}
	return m
}

// CommonSynonyms folds everyday near-synonyms that users swap freely.
var CommonSynonyms = map[string]string{
	"picture": "photo",
	"pic":     "photo",
	"pics":    "photo",
	"job":     "work",
	"mom":     "mother",
	"mum":     "mother",
	"dad":     "father",
	"doc":     "doctor",
	"exam":    "test",
}

var strict = &Matcher{}

// Normalize lowercases, strips punctuation, collapses whitespace and strips
// simple plural suffixes from each word.
func Normalize(s string) string {
	return strict.Normalize(s)
}

// IsSimilar reports whether a and b are the same topic under the strict matcher.
func IsSimilar(a, b string) bool {
	return strict.IsSimilar(a, b)
}

// Normalize is the matcher-specific normalization (synonyms applied last).
func (m *Matcher) Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		w = stripPlural(w)
		if m != nil && m.synonyms != nil {
			if s, ok := m.synonyms[w]; ok {
				w = s
			}
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// IsSimilar is true iff the normalized topics are equal, or one contains the
// other and the shorter one is at least MinContainmentLen runes long.
func (m *Matcher) IsSimilar(a, b string) bool {
	na, nb := m.Normalize(a), m.Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	short, long := na, nb
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= MinContainmentLen && strings.Contains(long, short)
}

func stripPlural(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
