package failure

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultFloodWait is used when a rate-limit error carries no parseable
// duration. One minute is conservative enough to clear most provider windows.
const DefaultFloodWait = 60 * time.Second

var floodWaitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry after (\d+)`),
	regexp.MustCompile(`(?i)flood[ _:]*(?:wait)?[ _:]*(?:of )?(\d+)`),
	regexp.MustCompile(`(?i)wait (?:of )?(\d+) seconds?`),
	regexp.MustCompile(`(?i)\b(\d+) seconds? is required`),
}

// ParseFloodWait extracts the wait duration embedded in a rate-limit error
// message. The providers phrase it several ways ("Too Many Requests: retry
// after 14", "A wait of 30 seconds is required"); any integer captured is
// taken to be seconds. Returns DefaultFloodWait when nothing parses.
func ParseFloodWait(errText string) time.Duration {
	for _, re := range floodWaitPatterns {
		m := re.FindStringSubmatch(errText)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		return time.Duration(n) * time.Second
	}
	return DefaultFloodWait
}
