package policy

import "regexp"

type piiPattern struct {
	re          *regexp.Regexp
	replacement string
}

// Card redaction runs before phone so card numbers are not matched as phones.
var piiPatterns = []piiPattern{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns in chat text before it is
// persisted to the checkpoint store.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, p := range piiPatterns {
		next := p.re.ReplaceAllString(out, p.replacement)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
