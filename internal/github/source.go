package github

import (
	"context"
	"fmt"
	"log"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

// perPage is the page size used for issue and comment listing.
const perPage = 100

// SleepFunc pauses for the given duration, honoring context cancellation.
// Injectable so tests do not actually wait out rate limit windows.
type SleepFunc func(ctx context.Context, d time.Duration) error

// defaultSleep waits with a timer and aborts on context cancellation.
func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Source fetches issues and their comments from one repository. Rate limit
// errors are waited out indefinitely; all other API errors propagate to the
// caller.
type Source struct {
	client *gogithub.Client
	owner  string
	repo   string
	sleep  SleepFunc
	logger *log.Logger
}

// NewSource creates a Source for owner/repo using the given API client.
func NewSource(client *gogithub.Client, owner, repo string) *Source {
	return &Source{
		client: client,
		owner:  owner,
		repo:   repo,
		sleep:  defaultSleep,
		logger: log.New(log.Writer(), fmt.Sprintf("[github %s/%s] ", owner, repo), log.LstdFlags),
	}
}

// SetSleep replaces the rate-limit sleep function. Intended for tests.
func (s *Source) SetSleep(fn SleepFunc) {
	s.sleep = fn
}

// Repo returns the owner/repo string this source reads from.
func (s *Source) Repo() string {
	return s.owner + "/" + s.repo
}

// ListIssues streams every issue updated at or after since (all of them when
// since is nil), newest-updated first, calling fn once per issue. Pull
// requests are included with IsPullRequest set; filtering is the caller's
// call. Iteration stops early when fn returns an error.
func (s *Source) ListIssues(ctx context.Context, since *time.Time, fn func(RawIssue) error) error {
	opts := &gogithub.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gogithub.ListOptions{
			PerPage: perPage,
		},
	}
	if since != nil {
		opts.Since = *since
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var issues []*gogithub.Issue
		var resp *gogithub.Response
		err := s.withRateLimitRetry(ctx, func() error {
			var apiErr error
			issues, resp, apiErr = s.client.Issues.ListByRepo(ctx, s.owner, s.repo, opts)
			return apiErr
		})
		if err != nil {
			return fmt.Errorf("listing issues page %d: %w", opts.ListOptions.Page, err)
		}

		if len(issues) == 0 {
			return nil
		}

		for _, ghIssue := range issues {
			if err := fn(convertIssue(ghIssue)); err != nil {
				return err
			}
		}

		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		if err := s.throttle(ctx, resp); err != nil {
			return err
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// ListComments returns all comments on the given issue in chronological
// order. Issues with a zero comment count should skip the call entirely.
func (s *Source) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{
			PerPage: perPage,
		},
	}

	var comments []Comment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page []*gogithub.IssueComment
		var resp *gogithub.Response
		err := s.withRateLimitRetry(ctx, func() error {
			var apiErr error
			page, resp, apiErr = s.client.Issues.ListComments(ctx, s.owner, s.repo, number, opts)
			return apiErr
		})
		if err != nil {
			return nil, fmt.Errorf("listing comments for #%d: %w", number, err)
		}

		for _, ghComment := range page {
			comments = append(comments, convertComment(ghComment))
		}

		if resp == nil || resp.NextPage == 0 {
			return comments, nil
		}
		if err := s.throttle(ctx, resp); err != nil {
			return nil, err
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// throttle waits out the rate limit window when a page response reports the
// quota exhausted, instead of burning the next request on a guaranteed 403.
func (s *Source) throttle(ctx context.Context, resp *gogithub.Response) error {
	info := ParseRateLimit(resp.Response)
	if info == nil || info.Remaining > 0 {
		return nil
	}
	wait := rateLimitWait(info.Reset, time.Now())
	s.logger.Printf("rate limit exhausted, waiting %s before next page", wait)
	return s.sleep(ctx, wait)
}

// withRateLimitRetry runs call, waiting out rate limit windows and retrying
// until the call succeeds, fails with a non-rate-limit error, or the context
// is cancelled. There is no retry cap: a long sync is better than a failed
// one.
func (s *Source) withRateLimitRetry(ctx context.Context, call func() error) error {
	for {
		err := call()
		if err == nil {
			return nil
		}
		if !isRateLimitError(err) {
			return err
		}

		wait := rateLimitWait(resetTimeFromError(err), time.Now())
		s.logger.Printf("rate limited, waiting %s", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
