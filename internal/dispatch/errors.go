package dispatch

import "strings"

const maxErrorLen = 200

// quotaSignals are the substrings that identify a rate-limited or
// quota-exhausted collaborator call inside otherwise opaque error text.
var quotaSignals = []string{"quota", "rate limit", "429", "resource_exhausted"}

// FriendlyError maps collaborator failures to user-facing text. Quota
// and rate-limit errors get an actionable message; everything else gets
// a bounded generic fallback. Nothing escapes the dispatcher as an error.
func FriendlyError(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, sig := range quotaSignals {
		if strings.Contains(lower, sig) {
			return "I've hit my usage limit for the moment. Give it a minute and ask me again."
		}
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen] + "..."
	}
	return "Sorry, something went wrong while working on that: " + msg
}
