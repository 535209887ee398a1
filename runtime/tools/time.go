package tools

import "time"

// parseRFC3339 parses t as RFC3339; an unparsable or empty value yields the
// zero time rather than an error, since flight-plan rows are external data
// the engine must tolerate gaps in (§7 "missing enrichment datum: warning;
// proceeds with partial context").
func parseRFC3339(t string) (time.Time, bool) {
	if t == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, t)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
