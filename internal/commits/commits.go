// Package commits posts push notifications from source hosting webhooks
// to the channel.
package commits

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dalnet/chanbridge/internal/bot"
)

// Payload extracts what the channel messages need from a push payload.
type Payload interface {
	Commits() []Commit
	CommitURL(c Commit) string
	Author(c Commit) string
	CompareURL() string
}

// Commit carries the fields of a pushed commit both providers share or
// need.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`

	// GitHub
	Committer struct {
		Name string `json:"name"`
	} `json:"committer"`

	// Bitbucket
	Node      string `json:"node"`
	RawAuthor string `json:"raw_author"`
}

// Messages renders a push as channel lines. A single commit is one line
// with its link; several get a count header and a compare link.
func Messages(p Payload) []string {
	commits := p.Commits()
	if len(commits) == 0 {
		return nil
	}
	line := func(c Commit) string {
		return fmt.Sprintf("%s - %s", firstLine(c.Message), p.Author(c))
	}
	if len(commits) == 1 {
		return []string{fmt.Sprintf("%s %s", line(commits[0]), p.CommitURL(commits[0]))}
	}
	msgs := make([]string, 0, len(commits)+2)
	msgs = append(msgs, fmt.Sprintf("%d new commits:", len(commits)))
	for _, c := range commits {
		msgs = append(msgs, line(c))
	}
	return append(msgs, "Compare view: "+p.CompareURL())
}

// firstLine keeps multi-line commit messages to one channel line.
func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(s)
}

// GitHubPayload is a GitHub push event.
type GitHubPayload struct {
	Compare    string   `json:"compare"`
	CommitList []Commit `json:"commits"`
}

func (p *GitHubPayload) Commits() []Commit         { return p.CommitList }
func (p *GitHubPayload) CommitURL(c Commit) string { return c.URL }
func (p *GitHubPayload) Author(c Commit) string    { return c.Committer.Name }

// CompareURL drops the "^" GitHub leaves in compare ranges.
func (p *GitHubPayload) CompareURL() string {
	return strings.ReplaceAll(p.Compare, "^", "")
}

// BitbucketPayload is a Bitbucket POST service payload.
type BitbucketPayload struct {
	CanonURL   string `json:"canon_url"`
	Repository struct {
		AbsoluteURL string `json:"absolute_url"`
	} `json:"repository"`
	CommitList []Commit `json:"commits"`
}

func (p *BitbucketPayload) Commits() []Commit { return p.CommitList }

func (p *BitbucketPayload) repoURL() string {
	return p.CanonURL + p.Repository.AbsoluteURL
}

func (p *BitbucketPayload) CommitURL(c Commit) string {
	return fmt.Sprintf("%schangeset/%s/", p.repoURL(), c.Node)
}

// Author is the name part of "Name <email>".
func (p *BitbucketPayload) Author(c Commit) string {
	name, _, _ := strings.Cut(c.RawAuthor, "<")
	return strings.TrimSpace(name)
}

func (p *BitbucketPayload) CompareURL() string {
	first, last := p.CommitList[0].Node, p.CommitList[len(p.CommitList)-1].Node
	return fmt.Sprintf("%scompare/%s..%s", p.repoURL(), first, last)
}

var errNoPayload = errors.New("commits: missing payload parameter")

type behavior struct {
	name    string
	pattern string
	decode  func([]byte) (Payload, error)
}

// GitHub handles pushes posted to <prefix>github/.
func GitHub(prefix string) bot.Behavior {
	return behavior{
		name:    "github",
		pattern: "^" + regexp.QuoteMeta(prefix+"github/") + "$",
		decode: func(b []byte) (Payload, error) {
			var p GitHubPayload
			err := json.Unmarshal(b, &p)
			return &p, err
		},
	}
}

// Bitbucket handles pushes posted to <prefix>bitbucket/.
func Bitbucket(prefix string) bot.Behavior {
	return behavior{
		name:    "bitbucket",
		pattern: "^" + regexp.QuoteMeta(prefix+"bitbucket/") + "$",
		decode: func(b []byte) (Payload, error) {
			var p BitbucketPayload
			err := json.Unmarshal(b, &p)
			return &p, err
		},
	}
}

func (b behavior) Name() string { return b.name }

func (b behavior) Handlers() []bot.Handler {
	return []bot.Handler{bot.OnWebhook(b.pattern, b.handle)}
}

func (b behavior) handle(c *bot.Context, req bot.WebhookRequest) (string, error) {
	raw := req.Params.Get("payload")
	if raw == "" {
		return "", errNoPayload
	}
	p, err := b.decode([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("decode %s payload: %w", b.name, err)
	}
	for _, msg := range Messages(p) {
		c.Send(msg)
	}
	return "", nil
}
