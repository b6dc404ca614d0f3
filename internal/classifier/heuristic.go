package classifier

import (
	"context"
	"regexp"
	"strings"
)

type weightedKeyword struct {
	keyword string
	weight  float64
}

// GenuineThreshold is the confidence a category needs to count as a genuine moment.
const GenuineThreshold = 0.5

// Heuristic scores messages with weighted keyword tables. It needs no network
// and is the fallback behind the LLM classifier.
type Heuristic struct {
	positive []weightedKeyword
	negative []weightedKeyword
	genuine  map[string][]weightedKeyword
	resolved []*regexp.Regexp
}

func NewHeuristic() *Heuristic {
	return &Heuristic{
		positive: []weightedKeyword{
			{"thank", 0.3}, {"love", 0.4}, {"great", 0.3}, {"awesome", 0.3},
			{"happy", 0.3}, {"glad", 0.3}, {"haha", 0.2}, {"lol", 0.2},
			{"nice", 0.2}, {"amazing", 0.4}, {"excited", 0.3}, {"fun", 0.2},
			{"miss you", 0.4}, {"appreciate", 0.4},
		},
		negative: []weightedKeyword{
			{"hate", 0.5}, {"annoying", 0.4}, {"shut up", 0.6}, {"stupid", 0.5},
			{"useless", 0.5}, {"whatever", 0.3}, {"boring", 0.3}, {"leave me alone", 0.6},
			{"sad", 0.3}, {"tired", 0.2}, {"ugh", 0.2}, {"terrible", 0.4},
		},
		// Heavier weights on phrases that are hard to say casually.
		genuine: map[string][]weightedKeyword{
			CategoryVulnerability: {
				{"never told anyone", 0.7}, {"hard for me to say", 0.6}, {"i'm scared", 0.4},
				{"i am scared", 0.4}, {"honestly", 0.2}, {"i trust you", 0.5},
				{"i feel alone", 0.5}, {"struggling", 0.3},
			},
			CategoryGratitude: {
				{"means a lot", 0.5}, {"thank you so much", 0.4}, {"really helped", 0.4},
				{"grateful", 0.4}, {"appreciate you", 0.5},
			},
			CategoryAffection: {
				{"i missed you", 0.5}, {"love talking to you", 0.6}, {"you make me", 0.3},
				{"you're the best", 0.4}, {"care about you", 0.5},
			},
			CategoryMilestone: {
				{"got the job", 0.6}, {"i passed", 0.5}, {"got engaged", 0.6},
				{"finally did it", 0.5}, {"first time", 0.2},
			},
		},
		resolved: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:the|my)\s+([a-z][a-z ]{2,40}?)\s+(?:went|was|turned out)\s+(?:well|great|fine|ok|okay|badly|terrible|awful)`),
			regexp.MustCompile(`(?i)\bupdate on (?:the |my )?([a-z][a-z ]{2,40}?)(?:[:.,!]|$)`),
			regexp.MustCompile(`(?i)\b(?:found|fixed|finished|sorted out) (?:the |my )?([a-z][a-z ]{2,40}?)(?:[.,!]|$)`),
		},
	}
}

func (h *Heuristic) Classify(_ context.Context, text string, _ []string) (Intent, error) {
	lower := strings.ToLower(text)
	var in Intent

	pos := score(lower, h.positive)
	neg := score(lower, h.negative)
	in.ToneSentiment = clamp(pos-neg, -1, 1)
	in.ToneIntensity = clamp(pos+neg, 0, 1)

	// Two or more exclamation marks amplify whatever tone is present.
	if n := strings.Count(text, "!"); n >= 2 && in.ToneSentiment != 0 {
		boost := clamp(float64(n)*0.1, 0, 0.2)
		in.ToneIntensity = clamp(in.ToneIntensity+boost, 0, 1)
		if in.ToneSentiment > 0 {
			in.ToneSentiment = clamp(in.ToneSentiment+boost, -1, 1)
		} else {
			in.ToneSentiment = clamp(in.ToneSentiment-boost, -1, 1)
		}
	}

	best, bestScore := "", 0.0
	for _, cat := range []string{CategoryVulnerability, CategoryGratitude, CategoryAffection, CategoryMilestone} {
		if s := score(lower, h.genuine[cat]); s > bestScore {
			best, bestScore = cat, s
		}
	}
	if bestScore >= GenuineThreshold {
		in.GenuineMoment = true
		in.GenuineCategory = best
		in.GenuineConfidence = clamp(bestScore, 0, 1)
	}

	for _, re := range h.resolved {
		if m := re.FindStringSubmatch(lower); len(m) > 1 {
			in.ResolvedTopic = strings.TrimSpace(m[1])
			break
		}
	}
	return in, nil
}

func score(lower string, table []weightedKeyword) float64 {
	var s float64
	for _, kw := range table {
		if strings.Contains(lower, kw.keyword) {
			s += kw.weight
		}
	}
	return s
}
