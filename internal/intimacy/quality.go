// Package intimacy scores message effort, tracks vulnerability exchanges and
// decides, probabilistically, when a flirt moment may happen.
package intimacy

import (
	"strings"
	"unicode"
)

// Effort thresholds.
const (
	BaselineQuality   = 0.5
	QualityStep       = 0.2
	LowEffortMinChars = 12
	LowEffortMinWords = 3
	HighEffortChars   = 160
)

var lowEffortPhrases = map[string]bool{
	"ok": true, "okay": true, "k": true, "kk": true, "lol": true, "lmao": true,
	"haha": true, "sure": true, "yeah": true, "yep": true, "yes": true, "no": true,
	"nah": true, "hmm": true, "cool": true, "nice": true, "idk": true,
	"whatever": true, "fine": true, "same": true, "true": true, "ok cool": true,
	"i guess": true, "not much": true, "nothing much": true,
}

var reflectiveMarkers = []string{
	"i've been thinking", "i have been thinking", "i realized", "i realised",
	"i feel like", "honestly", "i wonder", "looking back", "made me think",
	"to be honest", "the more i think",
}

var vulnerableMarkers = []string{
	"scared", "afraid", "terrified", "i trust you", "anxious", "lonely",
	"i need someone", "need support", "hard time", "vulnerable", "insecure",
	"never told", "struggling", "i'm not okay", "i am not okay",
}

// Quality is the effort reading of a single message.
type Quality struct {
	Score        float64 `json:"score"`
	IsLowEffort  bool    `json:"is_low_effort"`
	IsHighEffort bool    `json:"is_high_effort"`
	IsVulnerable bool    `json:"is_vulnerable"`
}

// AnalyzeMessageQuality is pure: same text, same result.
func AnalyzeMessageQuality(text string) Quality {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	q := Quality{Score: BaselineQuality}

	words := strings.Fields(lower)
	bare := strings.TrimFunc(lower, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	if len([]rune(trimmed)) < LowEffortMinChars || len(words) < LowEffortMinWords || lowEffortPhrases[bare] {
		q.IsLowEffort = true
		q.Score -= QualityStep
	}
	if !q.IsLowEffort && (len([]rune(trimmed)) >= HighEffortChars || containsAny(lower, reflectiveMarkers)) {
		q.IsHighEffort = true
		q.Score += QualityStep
	}
	if containsAny(lower, vulnerableMarkers) {
		q.IsVulnerable = true
		q.Score += QualityStep
	}
	q.Score = clamp(q.Score, 0, 1)
	return q
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
