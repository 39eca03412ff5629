package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

// newTestSource creates a Source backed by an httptest server. The caller
// must close the returned server.
func newTestSource(t *testing.T, handler http.Handler) (*Source, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)

	client := gogithub.NewClient(nil)
	baseURL, err := client.BaseURL.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing base URL: %v", err)
	}
	client.BaseURL = baseURL

	return NewSource(client, "testowner", "testrepo"), srv
}

// makeIssueJSON creates a JSON-compatible issue response.
func makeIssueJSON(number int, title string, isPR bool, updatedAt time.Time) map[string]interface{} {
	issue := map[string]interface{}{
		"number":     number,
		"title":      title,
		"body":       "body of " + title,
		"state":      "open",
		"comments":   0,
		"html_url":   fmt.Sprintf("https://github.com/testowner/testrepo/issues/%d", number),
		"updated_at": updatedAt.Format(time.RFC3339),
		"created_at": updatedAt.Add(-time.Hour).Format(time.RFC3339),
		"user": map[string]interface{}{
			"login": "testauthor",
		},
		"labels": []map[string]interface{}{
			{"name": "bug"},
		},
	}
	if isPR {
		issue["pull_request"] = map[string]interface{}{
			"url": fmt.Sprintf("https://api.github.com/repos/testowner/testrepo/pulls/%d", number),
		}
	}
	return issue
}

func TestListIssuesPagination(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state = %q, want all", got)
		}
		if got := r.URL.Query().Get("sort"); got != "updated" {
			t.Errorf("sort = %q, want updated", got)
		}

		var issues []map[string]interface{}
		switch r.URL.Query().Get("page") {
		case "", "1":
			issues = []map[string]interface{}{
				makeIssueJSON(3, "third", false, now),
				makeIssueJSON(2, "second pr", true, now.Add(-time.Minute)),
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/testowner/testrepo/issues?page=2>; rel="next"`, srv.URL))
		case "2":
			issues = []map[string]interface{}{
				makeIssueJSON(1, "first", false, now.Add(-2*time.Minute)),
			}
		}
		json.NewEncoder(w).Encode(issues)
	})

	client := gogithub.NewClient(nil)
	baseURL, _ := client.BaseURL.Parse(srv.URL + "/")
	client.BaseURL = baseURL
	source := NewSource(client, "testowner", "testrepo")

	var got []RawIssue
	err := source.ListIssues(context.Background(), nil, func(issue RawIssue) error {
		got = append(got, issue)
		return nil
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d issues, want 3", len(got))
	}
	if got[0].Number != 3 || got[1].Number != 2 || got[2].Number != 1 {
		t.Errorf("order = [%d %d %d], want [3 2 1]", got[0].Number, got[1].Number, got[2].Number)
	}
	if !got[1].IsPullRequest {
		t.Error("issue #2 should be flagged as a pull request")
	}
	if got[0].IsPullRequest {
		t.Error("issue #3 wrongly flagged as a pull request")
	}
	if got[0].Author != "testauthor" {
		t.Errorf("Author = %q, want testauthor", got[0].Author)
	}
}

func TestListIssuesPassesSince(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var gotSince atomic.Value

	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince.Store(r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer srv.Close()

	err := source.ListIssues(context.Background(), &since, func(RawIssue) error { return nil })
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}

	want := since.Format(time.RFC3339)
	if got := gotSince.Load(); got != want {
		t.Errorf("since = %v, want %v", got, want)
	}
}

func TestListIssuesStopsOnCallbackError(t *testing.T) {
	now := time.Now().UTC()

	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			makeIssueJSON(1, "first", false, now),
			makeIssueJSON(2, "second", false, now),
		})
	}))
	defer srv.Close()

	sentinel := fmt.Errorf("stop here")
	var seen int
	err := source.ListIssues(context.Background(), nil, func(RawIssue) error {
		seen++
		return sentinel
	})
	if err != sentinel {
		t.Errorf("err = %v, want sentinel", err)
	}
	if seen != 1 {
		t.Errorf("callback ran %d times, want 1", seen)
	}
}

func TestListIssuesRetriesAfterRateLimit(t *testing.T) {
	now := time.Now().UTC()
	var calls atomic.Int32

	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(30*time.Second).Unix()))
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "API rate limit exceeded",
			})
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			makeIssueJSON(1, "first", false, now),
		})
	}))
	defer srv.Close()

	var slept []time.Duration
	source.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	var got []RawIssue
	err := source.ListIssues(context.Background(), nil, func(issue RawIssue) error {
		got = append(got, issue)
		return nil
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d issues after retry, want 1", len(got))
	}
	if len(slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(slept))
	}
	// Wait is time-until-reset plus the 5s cushion.
	if slept[0] < 5*time.Second || slept[0] > 40*time.Second {
		t.Errorf("sleep duration = %s, want reset wait plus cushion", slept[0])
	}
}

func TestListIssuesThrottlesWhenQuotaExhausted(t *testing.T) {
	now := time.Now().UTC()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Page 1 succeeds but reports the quota spent; the next page request
	// must wait for the reset instead of collecting a 403.
	mux.HandleFunc("/repos/testowner/testrepo/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(10*time.Second).Unix()))
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/testowner/testrepo/issues?page=2>; rel="next"`, srv.URL))
			json.NewEncoder(w).Encode([]map[string]interface{}{
				makeIssueJSON(2, "second", false, now),
			})
		case "2":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				makeIssueJSON(1, "first", false, now),
			})
		}
	})

	client := gogithub.NewClient(nil)
	baseURL, _ := client.BaseURL.Parse(srv.URL + "/")
	client.BaseURL = baseURL
	source := NewSource(client, "testowner", "testrepo")

	var slept []time.Duration
	source.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	var got []RawIssue
	err := source.ListIssues(context.Background(), nil, func(issue RawIssue) error {
		got = append(got, issue)
		return nil
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d issues, want 2", len(got))
	}
	if len(slept) != 1 {
		t.Fatalf("slept %d times, want 1 pre-emptive wait", len(slept))
	}
	if slept[0] < 5*time.Second || slept[0] > 20*time.Second {
		t.Errorf("sleep duration = %s, want reset wait plus cushion", slept[0])
	}
}

func TestListIssuesPropagatesOtherErrors(t *testing.T) {
	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := source.ListIssues(context.Background(), nil, func(RawIssue) error { return nil })
	if err == nil {
		t.Fatal("expected error for server failure")
	}
}

func TestListComments(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	source, srv := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/testowner/testrepo/issues/7/comments" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"body":       "same here",
				"created_at": now.Format(time.RFC3339),
				"user":       map[string]interface{}{"login": "bob"},
			},
			{
				"body":       "fixed by #12",
				"created_at": now.Add(time.Minute).Format(time.RFC3339),
				"user":       map[string]interface{}{"login": "carol"},
			},
		})
	}))
	defer srv.Close()

	comments, err := source.ListComments(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}
	if comments[0].Author != "bob" || comments[1].Author != "carol" {
		t.Errorf("authors = [%s %s], want [bob carol]", comments[0].Author, comments[1].Author)
	}
	if comments[0].Body != "same here" {
		t.Errorf("body = %q", comments[0].Body)
	}
}
