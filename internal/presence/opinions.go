package presence

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"unicode"
)

// Opinion is one like or dislike from the character profile.
type Opinion struct {
	Category   string `json:"category"` // likes | dislikes
	Topic      string `json:"topic"`
	Sentiment  string `json:"sentiment"` // positive | negative
	Note       string `json:"note,omitempty"`
	CanMention bool   `json:"can_mention"`
}

var relationWords = map[string]bool{
	"mom": true, "mother": true, "dad": true, "father": true, "sister": true,
	"brother": true, "boss": true, "ex": true, "boyfriend": true, "girlfriend": true,
	"husband": true, "wife": true, "friend": true, "coworker": true, "colleague": true,
	"neighbor": true, "neighbour": true, "roommate": true, "cousin": true, "aunt": true,
	"uncle": true, "teacher": true, "partner": true,
}

// ParseCharacterOpinions reads a markdown profile: headings containing
// "like" or "dislike" open a section, bullets "- topic: note" are items.
// Dislikes about specific people are never mentionable.
func ParseCharacterOpinions(doc string) []Opinion {
	var out []Opinion
	section := ""
	sc := bufio.NewScanner(strings.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "#"):
			h := strings.ToLower(strings.TrimLeft(line, "# "))
			switch {
			case strings.Contains(h, "dislike") || strings.Contains(h, "hate"):
				section = "dislikes"
			case strings.Contains(h, "like") || strings.Contains(h, "love"):
				section = "likes"
			default:
				section = ""
			}
		case section != "" && (strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")):
			item := strings.TrimSpace(line[2:])
			topicText, note, _ := strings.Cut(item, ":")
			topicText = strings.TrimSpace(topicText)
			if topicText == "" {
				continue
			}
			o := Opinion{
				Category:   section,
				Topic:      topicText,
				Note:       strings.TrimSpace(note),
				Sentiment:  "positive",
				CanMention: true,
			}
			if section == "dislikes" {
				o.Sentiment = "negative"
				o.CanMention = !aboutPerson(topicText)
			}
			out = append(out, o)
		}
	}
	return out
}

// aboutPerson reports whether topic names a person: a relation word, or a
// capitalised word after the first.
func aboutPerson(topicText string) bool {
	words := strings.Fields(topicText)
	for i, w := range words {
		bare := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		lower := strings.ToLower(strings.TrimSuffix(strings.TrimSuffix(bare, "'s"), "’s"))
		if relationWords[lower] || relationWords[strings.TrimSuffix(lower, "s")] {
			return true
		}
		if i > 0 && bare != "" && unicode.IsUpper([]rune(bare)[0]) {
			return true
		}
	}
	return false
}

// Mentionable filters opinions the persona may bring up.
func Mentionable(all []Opinion) []Opinion {
	var out []Opinion
	for _, o := range all {
		if o.CanMention {
			out = append(out, o)
		}
	}
	return out
}

// OpinionSource parses a profile file once and serves the cached result.
type OpinionSource struct {
	path string
	once sync.Once
	list []Opinion
	err  error
}

func NewOpinionSource(path string) *OpinionSource {
	return &OpinionSource{path: path}
}

// Opinions returns the parsed profile. An empty path yields no opinions.
func (o *OpinionSource) Opinions() ([]Opinion, error) {
	o.once.Do(func() {
		if o.path == "" {
			return
		}
		data, err := os.ReadFile(o.path)
		if err != nil {
			o.err = err
			return
		}
		o.list = ParseCharacterOpinions(string(data))
	})
	return o.list, o.err
}
