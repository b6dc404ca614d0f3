package presence

import (
	"regexp"
	"strings"
)

// MaxTopicWords bounds extracted topics.
const MaxTopicWords = 6

// Rule detects one kind of open loop. The first capture group of Pattern is the topic.
type Rule struct {
	Name     string
	Category string
	Pattern  *regexp.Regexp
	Salience float64
}

// Detection is a rule hit before it becomes a Loop.
type Detection struct {
	Rule     string
	Category string
	Topic    string
	Salience float64
}

const (
	whenWords = `(?:tomorrow|tonight|today|this (?:week|weekend|morning|afternoon|evening)|next (?:week|month)|on (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday))`
	stop      = `(?:[.,!?;]|$| and | but | so | because | when )`
	planStop  = `(?:[.,!?;]|$| and | but | so | because | when | this | next | tomorrow| tonight| today| later)`
)

// DefaultRules is the built-in rule table. Input is lowercased before matching.
var DefaultRules = []Rule{
	{
		Name:     "my_x_is_soon",
		Category: CategoryPendingEvent,
		Pattern:  regexp.MustCompile(`\bmy ([a-z' ]{2,40}?) (?:is|are) ` + whenWords),
		Salience: 0.7,
	},
	{
		Name:     "i_have_x_soon",
		Category: CategoryPendingEvent,
		Pattern:  regexp.MustCompile(`\bi (?:have|got) (?:a |an |my |the )?([a-z' ]{2,30}?) ` + whenWords),
		Salience: 0.7,
	},
	{
		Name:     "worried_about",
		Category: CategoryEmotionalFollowup,
		Pattern:  regexp.MustCompile(`\bi(?:'m| am) (?:so |really |kind of |a bit |pretty )?(?:worried|nervous|anxious|stressed|scared) (?:about|for) ([a-z' ]{2,40}?)` + stop),
		Salience: 0.8,
	},
	{
		Name:     "going_to",
		Category: CategoryCommitmentCheck,
		Pattern:  regexp.MustCompile(`\bi(?:'m| am) (?:going to|gonna) (?:try to |finally )?([a-z' ]{3,40}?)` + planStop),
		Salience: 0.5,
	},
	{
		Name:     "will_start",
		Category: CategoryCommitmentCheck,
		Pattern:  regexp.MustCompile(`\bi(?:'ll| will) (?:finally |really )?((?:start|finish|quit|apply|call|ask|try)(?: [a-z' ]{2,40}?)?)` + planStop),
		Salience: 0.5,
	},
	{
		Name:     "waiting_on",
		Category: CategoryCuriosityThread,
		Pattern:  regexp.MustCompile(`\bwaiting (?:to hear (?:back )?(?:from|about)|on|for) ([a-z' ]{2,40}?)` + stop),
		Salience: 0.6,
	},
	{
		Name:     "wondering_about",
		Category: CategoryCuriosityThread,
		Pattern:  regexp.MustCompile(`\bwondering (?:about|if|whether) ([a-z' ]{2,40}?)` + stop),
		Salience: 0.5,
	},
	{
		Name:     "always_never",
		Category: CategoryPatternObservation,
		Pattern:  regexp.MustCompile(`\bi (?:always|never|keep) ([a-z' ]{3,40}?)` + stop),
		Salience: 0.4,
	},
}

// Match runs every rule over text and returns one detection per hit.
func Match(rules []Rule, text string) []Detection {
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	var out []Detection
	for _, r := range rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(lower, -1) {
			if len(m) < 2 {
				continue
			}
			t := cleanTopic(m[1])
			if t == "" {
				continue
			}
			out = append(out, Detection{Rule: r.Name, Category: r.Category, Topic: t, Salience: r.Salience})
		}
	}
	return out
}

// vagueTopics are pronoun-only captures that carry nothing to follow up on.
var vagueTopics = map[string]bool{
	"it": true, "that": true, "this": true, "them": true, "him": true,
	"her": true, "everything": true, "stuff": true, "things": true,
}

func cleanTopic(s string) string {
	words := strings.Fields(strings.Trim(s, " '"))
	if len(words) > MaxTopicWords {
		words = words[:MaxTopicWords]
	}
	t := strings.Join(words, " ")
	if vagueTopics[t] {
		return ""
	}
	return t
}
