// Package refs extracts issue and pull request numbers from free text.
// All functions are pure: no I/O, deterministic, and safe on empty input.
package refs

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// closingKeywordPattern matches GitHub's closing-keyword grammar: one of the
// recognized keywords immediately followed by #N. Used on pull request bodies
// to discover which issues a PR declares it resolves.
var closingKeywordPattern = regexp.MustCompile(`(?i)\b(?:fix(?:e[sd])?|close[sd]?|resolve[sd]?)\s+#(\d+)`)

// Query-side patterns. Deliberately looser than the sync-side grammar: a user
// asking about "4521" almost certainly means issue 4521.
var (
	hashNumberPattern = regexp.MustCompile(`#(\d+)`)
	issueWordPattern  = regexp.MustCompile(`(?i)\bissue\s+#?(\d+)`)
	bareNumberPattern = regexp.MustCompile(`\b(\d{4,})\b`)
)

// Extractor finds pull request references scoped to a single repository.
// The repository identity is needed to match full PR URLs and owner/repo#N
// shorthand without picking up references to other repositories.
type Extractor struct {
	prURLPattern   *regexp.Regexp
	prWordPattern  *regexp.Regexp
	shorthandMatch *regexp.Regexp
}

// NewExtractor creates an Extractor for the given repository.
func NewExtractor(owner, repo string) *Extractor {
	ownerQ := regexp.QuoteMeta(owner)
	repoQ := regexp.QuoteMeta(repo)
	return &Extractor{
		prURLPattern:   regexp.MustCompile(fmt.Sprintf(`github\.com/%s/%s/pull/(\d+)`, ownerQ, repoQ)),
		prWordPattern:  regexp.MustCompile(`(?i)\b(?:PR\s+#?|pull\s+request\s+#?|pull\s+#?)(\d+)`),
		shorthandMatch: regexp.MustCompile(fmt.Sprintf(`(?i)\b%s/%s#(\d+)`, ownerQ, repoQ)),
	}
}

// PRLinks returns every pull request number referenced in text, via full
// URLs, natural-language mentions (PR #N, pull request N, pull N), or
// owner/repo#N shorthand. Numbers caught by multiple pattern families appear
// once; the result is sorted ascending.
func (e *Extractor) PRLinks(text string) []int {
	if text == "" {
		return nil
	}
	seen := make(map[int]struct{})
	for _, p := range []*regexp.Regexp{e.prURLPattern, e.prWordPattern, e.shorthandMatch} {
		collectMatches(p, text, seen)
	}
	return sortedKeys(seen)
}

// ClosingReferences returns the issue numbers that text declares resolved
// via GitHub closing keywords (fixes #N, closes #N, resolves #N, and their
// tense variants). Distinct from PRLinks: this captures the semantic "this
// PR closes issue N" relationship and is applied to pull request bodies.
func ClosingReferences(text string) []int {
	if text == "" {
		return nil
	}
	seen := make(map[int]struct{})
	collectMatches(closingKeywordPattern, text, seen)
	return sortedKeys(seen)
}

// IssueNumbers returns explicit issue numbers found in a user query. It
// accepts #N, "issue N", and bare numbers of four or more digits; a bare
// large number in a question is assumed to name an issue.
func IssueNumbers(query string) []int {
	if query == "" {
		return nil
	}
	seen := make(map[int]struct{})
	collectMatches(hashNumberPattern, query, seen)
	collectMatches(issueWordPattern, query, seen)
	collectMatches(bareNumberPattern, query, seen)
	return sortedKeys(seen)
}

func collectMatches(p *regexp.Regexp, text string, out map[int]struct{}) {
	for _, m := range p.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		out[n] = struct{}{}
	}
}

func sortedKeys(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	nums := make([]int, 0, len(set))
	for n := range set {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// MergeSorted returns the sorted union of two ascending int slices.
// Used to keep an issue's linked PR set monotonically non-decreasing.
func MergeSorted(a, b []int) []int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(a)+len(b))
	for _, n := range a {
		seen[n] = struct{}{}
	}
	for _, n := range b {
		seen[n] = struct{}{}
	}
	return sortedKeys(seen)
}
