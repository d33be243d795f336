package bot

import "regexp"

// WellbeingVerdict is the outcome of the "is the user okay" check on a DM
// from a user with an open follow-up flag.
type WellbeingVerdict struct {
	IsOkay      bool
	Confidence  float64
	WantsToStop bool
}

// WellbeingClassifier decides how a flagged user's DM should be handled.
// Pluggable so the heuristic can be swapped for an LLM-backed check.
type WellbeingClassifier interface {
	Classify(text string) WellbeingVerdict
}

var stopIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stop (messaging|texting|dm|dming|contacting|checking in on)`),
	regexp.MustCompile(`(?i)don['’]?t (message|text|dm|contact|check in on)`),
	regexp.MustCompile(`(?i)no (more|longer) (messages|texts|dms|check ins)`),
	regexp.MustCompile(`(?i)please stop`),
	regexp.MustCompile(`(?i)leave me alone`),
	regexp.MustCompile(`(?i)i don['’]?t want (you|this|these) (to|messages|texts|dms)`),
}

var positiveIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i['’]?m (ok|okay|fine|good|alright|better)`),
	regexp.MustCompile(`(?i)i feel (ok|okay|fine|good|better|alright)`),
	regexp.MustCompile(`(?i)doing (ok|okay|fine|good|better|alright)`),
	regexp.MustCompile(`(?i)thanks|thank you`),
	regexp.MustCompile(`(?i)i appreciate`),
	regexp.MustCompile(`(?i)\b(yes|yeah|yep)\b`),
}

var negativeIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i['’]?m (not ok|not okay|not fine|not good|bad|worse)`),
	regexp.MustCompile(`(?i)i feel (not ok|not okay|not fine|not good|bad|worse)`),
	regexp.MustCompile(`(?i)still (struggling|hurting|sad|depressed)`),
	regexp.MustCompile(`(?i)\b(no|nope|nah)\b`),
}

// RegexWellbeing is the heuristic strategy. A reply that matches nothing
// scores below the clear threshold so it falls through to normal handling.
type RegexWellbeing struct{}

func (RegexWellbeing) Classify(text string) WellbeingVerdict {
	for _, p := range stopIndicators {
		if p.MatchString(text) {
			return WellbeingVerdict{IsOkay: true, Confidence: 0.9, WantsToStop: true}
		}
	}

	hasPositive := false
	for _, p := range positiveIndicators {
		if p.MatchString(text) {
			hasPositive = true
			break
		}
	}
	hasNegative := false
	for _, p := range negativeIndicators {
		if p.MatchString(text) {
			hasNegative = true
			break
		}
	}

	switch {
	case hasPositive && !hasNegative:
		return WellbeingVerdict{IsOkay: true, Confidence: 0.8}
	case hasNegative:
		return WellbeingVerdict{IsOkay: false, Confidence: 0.7}
	default:
		return WellbeingVerdict{IsOkay: true, Confidence: 0.5}
	}
}
