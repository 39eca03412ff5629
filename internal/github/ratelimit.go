package github

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

// rateLimitCushion is added on top of the reset wait so the limit has
// actually rolled over by the time the retry fires.
const rateLimitCushion = 5 * time.Second

// RateLimitInfo holds parsed rate limit information from GitHub API response
// headers.
type RateLimitInfo struct {
	Remaining int
	Reset     time.Time
	Observed  time.Time
}

// ParseRateLimit extracts rate limit information from a GitHub API HTTP
// response. Returns nil if the relevant headers are not present.
func ParseRateLimit(resp *http.Response) *RateLimitInfo {
	if resp == nil {
		return nil
	}

	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")

	if remainingStr == "" && resetStr == "" {
		return nil
	}

	info := &RateLimitInfo{
		Observed: time.Now(),
	}

	if remainingStr != "" {
		remaining, err := strconv.Atoi(remainingStr)
		if err == nil {
			info.Remaining = remaining
		}
	}

	if resetStr != "" {
		resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
		if err == nil {
			info.Reset = time.Unix(resetUnix, 0)
		}
	}

	return info
}

// rateLimitWait returns how long to pause before retrying a rate-limited
// request: the time until the limit resets (zero if already past) plus a
// small cushion. now is injected for testability.
func rateLimitWait(reset, now time.Time) time.Duration {
	wait := reset.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait + rateLimitCushion
}

// resetTimeFromError pulls the reset time out of a go-github rate limit
// error. Returns a zero time when the error carries none.
func resetTimeFromError(err error) time.Time {
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return rle.Rate.Reset.Time
	}

	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &abuse) && abuse.RetryAfter != nil {
		return time.Now().Add(*abuse.RetryAfter)
	}

	return time.Time{}
}

// isRateLimitError reports whether err is a primary or secondary rate limit
// error from the GitHub API.
func isRateLimitError(err error) bool {
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var abuse *gogithub.AbuseRateLimitError
	return errors.As(err, &abuse)
}
