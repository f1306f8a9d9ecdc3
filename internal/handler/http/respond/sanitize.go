package respond

import (
	"regexp"
)

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// redactions run in order. The Anthropic key rule precedes the OpenAI one,
// which would otherwise match its prefix.
var redactions = []redaction{
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`), "sk-ant-****"},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`), "sk-****"},
	// URL-style DSN
	{regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`), "://$1:****@"},
	// keyword/value DSN
	{regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`), "${1}****"},
	// unsubscribe tokens
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "****.jwt"},
	// SMTP relays echo recipient addresses in rejections
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "****@****"},
}

// SanitizeError returns err's message with API keys, database passwords,
// tokens and email addresses masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replace)
	}
	return msg
}
