package privacy

import "regexp"

// RedactionToken replaces every stripped or sanitized span. It matches no
// secret pattern itself, which is what keeps sanitization idempotent.
const RedactionToken = "[REDACTED]"

// privateSpanPattern matches explicitly marked private sections. The span
// content is removed wholesale; partial leaks are not acceptable.
var privateSpanPattern = regexp.MustCompile(`(?is)<private>.*?</private>`)

// redactionRunPattern collapses adjacent redaction tokens into one.
var redactionRunPattern = regexp.MustCompile(`\[REDACTED\](?:\s*\[REDACTED\])+`)

// secretPattern is one entry of the ordered detection table.
type secretPattern struct {
	name string
	re   *regexp.Regexp
}

// secretPatterns is the ordered secret detection table. Multi-line block
// patterns come first so smaller patterns never fragment them; the table is
// data, so adding a category never touches sanitization logic.
var secretPatterns = []secretPattern{
	{
		name: "pem_private_key",
		re:   regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	},
	{
		name: "ssh_public_key",
		re:   regexp.MustCompile(`ssh-(?:rsa|ed25519|ecdsa|dss)\s+[A-Za-z0-9+/=]{16,}\S*`),
	},
	{
		name: "credentialed_url",
		re:   regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s:@/]+:[^\s@/]+@\S+`),
	},
	{
		name: "openai_key",
		re:   regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	},
	{
		name: "github_token",
		re:   regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	},
	{
		name: "slack_token",
		re:   regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	},
	{
		name: "aws_access_key_id",
		re:   regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		name: "bearer_token",
		re:   regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]{16,}=*`),
	},
	{
		name: "api_key_assignment",
		re:   regexp.MustCompile(`(?i)\b(?:api[_-]?key|apikey|secret[_-]?key|access[_-]?token|auth[_-]?token|client[_-]?secret)\b\s*[:=]\s*["']?[^\s"']{4,}["']?`),
	},
	{
		name: "password_assignment",
		re:   regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\b\s*[:=]\s*["']?[^\s"']{4,}["']?`),
	},
}
