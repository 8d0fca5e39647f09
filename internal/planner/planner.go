// Package planner infers navigation intent from free-text instructions.
//
// The rules are deliberately an ordered table evaluated top to bottom, most
// specific first: a full URL beats a bare domain beats an "open <name>"
// phrase. Keeping them as data keeps precedence visible and testable.
package planner

import (
	"regexp"
	"strings"
)

// DefaultStartURL is where a fresh session lands when the instruction names
// no destination.
const DefaultStartURL = "https://www.google.com"

// minActionLength is the threshold below which a residual instruction is not
// worth sending to the automation provider as an action.
const minActionLength = 5

// Plan is the planner's decision for one instruction.
type Plan struct {
	// Navigate reports whether a navigation step is required.
	Navigate bool
	// TargetURL is the navigation destination when Navigate is true.
	TargetURL string
	// Action is the residual instruction to execute after navigation; empty
	// means navigation-only.
	Action string
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	// build turns the match into a full URL.
	build func(match string) string
}

// Ordered most specific first. The first matching rule wins.
var rules = []rule{
	{
		name:    "full-url",
		pattern: regexp.MustCompile(`https?://[^\s]+`),
		build:   func(match string) string { return match },
	},
	{
		name:    "bare-domain",
		pattern: regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:com|org|net|io|ai|co|dev|app)\b(?:/[^\s]*)?`),
		build: func(match string) string {
			return "https://" + match
		},
	},
	{
		name:    "open-phrase",
		pattern: regexp.MustCompile(`(?i)\b(?:open|visit|goto|go to|navigate to|head to)\s+(?:the\s+)?([a-zA-Z0-9][a-zA-Z0-9\-]*)`),
		build: func(match string) string {
			return "https://" + strings.ToLower(match) + ".com"
		},
	},
}

// connectorWords are stripped from the edges of the residual instruction once
// the navigation span is removed.
var connectorWords = map[string]bool{
	"open": true, "visit": true, "goto": true, "go": true, "to": true,
	"navigate": true, "head": true, "the": true, "a": true, "an": true,
	"website": true, "site": true, "and": true, "then": true, "please": true,
}

// Decide plans the navigation and residual action for an instruction.
// reuseRequested reports whether the caller asked to continue an existing
// session; this changes the no-match fallback:
//
//   - fresh session, no URL cue: navigation is still forced to
//     DefaultStartURL so the action runs against a loaded page;
//   - reused session, no URL cue: navigation is skipped and the full
//     original instruction becomes the action. Downstream prompts depend on
//     receiving the instruction unmodified in this case.
func Decide(instruction string, reuseRequested bool) Plan {
	trimmed := strings.TrimSpace(instruction)

	for _, r := range rules {
		loc := r.pattern.FindStringSubmatchIndex(trimmed)
		if loc == nil {
			continue
		}

		var token string
		if len(loc) > 3 && loc[2] >= 0 {
			token = trimmed[loc[2]:loc[3]]
		} else {
			token = trimmed[loc[0]:loc[1]]
		}

		target := r.build(token)
		residual := cleanResidual(trimmed[:loc[0]] + " " + trimmed[loc[1]:])
		if len(residual) < minActionLength {
			// Near-empty input would only confuse the provider.
			residual = ""
		}

		return Plan{Navigate: true, TargetURL: target, Action: residual}
	}

	if reuseRequested {
		return Plan{Navigate: false, Action: trimmed}
	}
	return Plan{Navigate: true, TargetURL: DefaultStartURL, Action: trimmed}
}

// cleanResidual drops connector words from both edges of what is left after
// the navigation span is removed.
func cleanResidual(residual string) string {
	fields := strings.Fields(residual)

	start := 0
	for start < len(fields) && connectorWords[normalizeWord(fields[start])] {
		start++
	}
	end := len(fields)
	for end > start && connectorWords[normalizeWord(fields[end-1])] {
		end--
	}

	return strings.Join(fields[start:end], " ")
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.Trim(word, ",.;:!"))
}
