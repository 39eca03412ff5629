package github

import (
	"net/http"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

func TestRateLimitWait(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		reset time.Time
		want  time.Duration
	}{
		{"future reset", now.Add(30 * time.Second), 35 * time.Second},
		{"reset already past", now.Add(-10 * time.Second), 5 * time.Second},
		{"zero reset", time.Time{}, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rateLimitWait(tt.reset, now); got != tt.want {
				t.Errorf("rateLimitWait = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRateLimit(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "42")
	resp.Header.Set("X-RateLimit-Reset", "1748779200")

	info := ParseRateLimit(resp)
	if info == nil {
		t.Fatal("expected rate limit info")
	}
	if info.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", info.Remaining)
	}
	if info.Reset.Unix() != 1748779200 {
		t.Errorf("Reset = %v, want unix 1748779200", info.Reset)
	}
}

func TestParseRateLimitMissingHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if info := ParseRateLimit(resp); info != nil {
		t.Errorf("expected nil for missing headers, got %+v", info)
	}
	if info := ParseRateLimit(nil); info != nil {
		t.Errorf("expected nil for nil response, got %+v", info)
	}
}

func TestIsRateLimitError(t *testing.T) {
	rle := &gogithub.RateLimitError{}
	if !isRateLimitError(rle) {
		t.Error("RateLimitError not recognized")
	}

	abuse := &gogithub.AbuseRateLimitError{}
	if !isRateLimitError(abuse) {
		t.Error("AbuseRateLimitError not recognized")
	}

	if isRateLimitError(http.ErrHandlerTimeout) {
		t.Error("unrelated error misclassified as rate limit")
	}
}

func TestResetTimeFromError(t *testing.T) {
	reset := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	rle := &gogithub.RateLimitError{
		Rate: gogithub.Rate{Reset: gogithub.Timestamp{Time: reset}},
	}
	if got := resetTimeFromError(rle); !got.Equal(reset) {
		t.Errorf("reset = %v, want %v", got, reset)
	}

	if got := resetTimeFromError(http.ErrHandlerTimeout); !got.IsZero() {
		t.Errorf("expected zero time for unrelated error, got %v", got)
	}
}
