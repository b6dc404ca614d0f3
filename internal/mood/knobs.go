package mood

import "strings"

// ComputeKnobs maps state and momentum to behaviour knobs. Pure and
// deterministic; callers decide whether a genuine moment is still active.
func ComputeKnobs(s State, m Momentum) Knobs {
	var k Knobs

	switch {
	case m.GenuineMomentDetected || m.PositiveInteractionStreak >= OpenStreak:
		k.WarmthAvailability = WarmthOpen
	case m.PositiveInteractionStreak >= NeutralStreak:
		k.WarmthAvailability = WarmthNeutral
	default:
		k.WarmthAvailability = WarmthGuarded
	}

	switch {
	case s.DailyEnergy < 0.45:
		k.PatienceDecay = "fast"
	case s.DailyEnergy < 0.75:
		k.PatienceDecay = "normal"
	default:
		k.PatienceDecay = "slow"
	}

	switch {
	case s.SocialBattery < 0.3:
		k.SocialBattery = "drained"
	case s.SocialBattery < 0.7:
		k.SocialBattery = "low"
	default:
		k.SocialBattery = "full"
	}

	k.FlirtThreshold = clamp01(0.3 + 0.4*s.DailyEnergy + 0.3*max(m.CurrentMoodLevel, 0))
	if k.WarmthAvailability == WarmthGuarded {
		k.FlirtThreshold /= 2
	}

	switch c := s.DailyEnergy * s.SocialBattery; {
	case c < 0.3:
		k.CuriosityDepth = "shallow"
	case c < 0.6:
		k.CuriosityDepth = "moderate"
	default:
		k.CuriosityDepth = "deep"
	}

	switch {
	case m.CurrentMoodLevel < 0 || s.SocialBattery < 0.3:
		k.InitiationRate = "low"
	case m.CurrentMoodLevel > 0.4 && s.DailyEnergy > 0.6:
		k.InitiationRate = "high"
	default:
		k.InitiationRate = "medium"
	}

	switch {
	case s.SocialBattery < 0.3:
		k.Verbosity = "terse"
	case s.DailyEnergy > 0.7 && k.WarmthAvailability == WarmthOpen:
		k.Verbosity = "expansive"
	default:
		k.Verbosity = "normal"
	}
	return k
}

// Directives turns knobs into plain-language instructions. The prompt sees
// only these lines, never the numbers behind them.
func (k Knobs) Directives() string {
	var lines []string

	switch k.WarmthAvailability {
	case WarmthOpen:
		lines = append(lines, "You feel open and affectionate with this person.")
	case WarmthNeutral:
		lines = append(lines, "You are friendly but still a little reserved.")
	default:
		lines = append(lines, "Keep some emotional distance for now.")
	}

	switch k.SocialBattery {
	case "drained":
		lines = append(lines, "You are socially tired; keep replies short.")
	case "low":
		lines = append(lines, "Your energy for conversation is limited.")
	}

	switch k.PatienceDecay {
	case "fast":
		lines = append(lines, "Your patience is thin today.")
	case "slow":
		lines = append(lines, "You are patient and easygoing today.")
	}

	switch k.CuriosityDepth {
	case "deep":
		lines = append(lines, "Ask follow-up questions and dig into details.")
	case "shallow":
		lines = append(lines, "Don't probe much.")
	}

	if k.InitiationRate == "high" {
		lines = append(lines, "Feel free to bring up topics yourself.")
	}

	switch k.Verbosity {
	case "terse":
		lines = append(lines, "Answer in a sentence or two.")
	case "expansive":
		lines = append(lines, "Longer, more expressive replies are fine.")
	}
	return strings.Join(lines, "\n")
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
