package commits_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dalnet/chanbridge/internal/bot"
	"github.com/dalnet/chanbridge/internal/bot/bottest"
	"github.com/dalnet/chanbridge/internal/commits"
)

const githubPush = `{
  "compare": "https://github.com/acme/widgets/compare/1a2b3c^...4d5e6f",
  "commits": [
    {
      "id": "1a2b3c",
      "message": "Fix the frobnicator\n\nIt was broken.",
      "url": "https://github.com/acme/widgets/commit/1a2b3c",
      "committer": {"name": "Alice", "email": "alice@example.com"}
    },
    {
      "id": "7a8b9c",
      "message": "Add tests",
      "url": "https://github.com/acme/widgets/commit/7a8b9c",
      "committer": {"name": "Bob", "email": "bob@example.com"}
    },
    {
      "id": "4d5e6f",
      "message": "Update docs",
      "url": "https://github.com/acme/widgets/commit/4d5e6f",
      "committer": {"name": "Alice", "email": "alice@example.com"}
    }
  ]
}`

const bitbucketPush = `{
  "canon_url": "https://bitbucket.org",
  "repository": {"absolute_url": "/acme/widgets/"},
  "commits": [
    {"node": "abc123", "message": "Fix the frobnicator\n", "raw_author": "Alice Smith <alice@example.com>"}
  ]
}`

func post(t *testing.T, rt *bot.Runtime, path, payload string) bot.WebhookResult {
	t.Helper()
	params := url.Values{}
	if payload != "" {
		params.Set("payload", payload)
	}
	return rt.Webhook(context.Background(), bot.WebhookRequest{Path: path, Params: params})
}

func TestGitHubPush(t *testing.T) {
	rt, tr := bottest.New(t, commits.GitHub("/webhook/"), commits.Bitbucket("/webhook/"))
	bottest.Start(t, rt)

	res := post(t, rt, "/webhook/github/", githubPush)
	assert.Equal(t, http.StatusOK, res.Status.HTTPStatus())
	assert.Empty(t, res.Body)
	assert.Equal(t, []string{
		"3 new commits:",
		"Fix the frobnicator - Alice",
		"Add tests - Bob",
		"Update docs - Alice",
		"Compare view: https://github.com/acme/widgets/compare/1a2b3c...4d5e6f",
	}, tr.Sent())
}

func TestBitbucketPush(t *testing.T) {
	rt, tr := bottest.New(t, commits.GitHub("/webhook/"), commits.Bitbucket("/webhook/"))
	bottest.Start(t, rt)

	res := post(t, rt, "/webhook/bitbucket/", bitbucketPush)
	assert.Equal(t, bot.WebhookOK, res.Status)
	assert.Equal(t, []string{
		"Fix the frobnicator - Alice Smith https://bitbucket.org/acme/widgets/changeset/abc123/",
	}, tr.Sent())
}

func TestPushErrors(t *testing.T) {
	rt, tr := bottest.New(t, commits.GitHub("/webhook/"))
	bottest.Start(t, rt)

	assert.Equal(t, bot.WebhookFailed, post(t, rt, "/webhook/github/", "").Status)
	assert.Equal(t, bot.WebhookFailed, post(t, rt, "/webhook/github/", "{not json").Status)
	assert.Equal(t, bot.WebhookNotImplemented, post(t, rt, "/webhook/bitbucket/", bitbucketPush).Status)
	assert.Equal(t, bot.WebhookNotImplemented, post(t, rt, "/webhook/github/extra", githubPush).Status)
	assert.Empty(t, tr.Sent())
}

func TestMessages(t *testing.T) {
	p := &commits.BitbucketPayload{CanonURL: "https://bitbucket.org"}
	p.Repository.AbsoluteURL = "/acme/widgets/"
	p.CommitList = []commits.Commit{
		{Node: "aaa", Message: "one", RawAuthor: "Alice <a@example.com>"},
		{Node: "bbb", Message: "two", RawAuthor: "Bob<b@example.com>"},
	}

	assert.Equal(t, []string{
		"2 new commits:",
		"one - Alice",
		"two - Bob",
		"Compare view: https://bitbucket.org/acme/widgets/compare/aaa..bbb",
	}, commits.Messages(p))

	assert.Nil(t, commits.Messages(&commits.GitHubPayload{}))
}
