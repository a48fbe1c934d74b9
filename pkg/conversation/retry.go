package conversation

import "strings"

var retryablePatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"ECONNRESET",
	"ETIMEDOUT",
	"timeout",
	"temporary failure",
	"rate limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
}

// IsRetryableError reports whether err looks like a transient transport
// or provider failure worth another attempt.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
