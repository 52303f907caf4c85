package errdefs

import "regexp"

// redactPatterns match key/value pairs that must never reach logs or
// persistence. The replacement keeps the key so operators can still tell
// what was redacted.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|password|token|secret|private[_-]?key)["']?\s*[:=]\s*["']?[^\s"',}]+`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
}

// Redact strips credential material from s before it is persisted or
// emitted. Applied on every error/log path.
func Redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
