package github

import (
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

// RawIssue is an issue (or pull request) as fetched from the GitHub API,
// before content assembly. The issues endpoint returns pull requests mixed in
// with issues; IsPullRequest tells them apart.
type RawIssue struct {
	Number        int
	Title         string
	Body          string
	State         string
	Labels        []string
	Author        string
	URL           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CommentsCount int
	IsPullRequest bool
}

// Comment is one issue comment in chronological order.
type Comment struct {
	Body      string
	Author    string
	CreatedAt time.Time
}

// convertIssue converts a go-github Issue to a RawIssue.
func convertIssue(gh *gogithub.Issue) RawIssue {
	issue := RawIssue{
		Number:        gh.GetNumber(),
		Title:         gh.GetTitle(),
		Body:          gh.GetBody(),
		State:         gh.GetState(),
		URL:           gh.GetHTMLURL(),
		CommentsCount: gh.GetComments(),
		IsPullRequest: gh.PullRequestLinks != nil,
	}

	if gh.User != nil {
		issue.Author = gh.User.GetLogin()
	}

	for _, label := range gh.Labels {
		issue.Labels = append(issue.Labels, label.GetName())
	}

	if gh.CreatedAt != nil {
		issue.CreatedAt = gh.CreatedAt.Time
	}
	if gh.UpdatedAt != nil {
		issue.UpdatedAt = gh.UpdatedAt.Time
	}

	return issue
}

// convertComment converts a go-github IssueComment to a Comment.
func convertComment(gh *gogithub.IssueComment) Comment {
	c := Comment{Body: gh.GetBody()}
	if gh.User != nil {
		c.Author = gh.User.GetLogin()
	}
	if gh.CreatedAt != nil {
		c.CreatedAt = gh.CreatedAt.Time
	}
	return c
}
