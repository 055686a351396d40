package files

import "regexp"

// secretPatterns match credentials that must never reach model context:
// a read result is prompt material for every later phase of the turn, so a
// key read once would be echoed into context.md, the evidence ledger, and
// potentially the final response.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{20,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`xox[bap]-[0-9A-Za-z-]{10,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// redactSecrets masks credential-shaped substrings, returning the scrubbed
// text and how many replacements were made.
func redactSecrets(content string) (string, int) {
	total := 0
	for _, pattern := range secretPatterns {
		matches := pattern.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		total += len(matches)
		content = pattern.ReplaceAllString(content, "[REDACTED]")
	}
	return content, total
}
