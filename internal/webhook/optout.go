package webhook

import "strings"

// optOutKeywords is the fixed, case-insensitive opt-out vocabulary across
// the languages our audiences message in.
var optOutKeywords = map[string]bool{
	"stop":        true,
	"stopall":     true,
	"stop all":    true,
	"unsubscribe": true,
	"unsub":       true,
	"cancel":      true,
	"end":         true,
	"quit":        true,
	"baja":        true, // Spanish
	"arret":       true, // French
	"sair":        true, // Portuguese
	"acha":        true, // Swahili
	"komesha":     true, // Swahili
}

// IsOptOut reports whether an inbound message expresses opt-out intent:
// either the whole message or its first word is a known keyword.
func IsOptOut(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".!?")
	if normalized == "" {
		return false
	}
	if optOutKeywords[normalized] {
		return true
	}
	fields := strings.Fields(normalized)
	return len(fields) > 0 && optOutKeywords[fields[0]]
}
