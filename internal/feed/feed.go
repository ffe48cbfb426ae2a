// Package feed posts new items from RSS and Atom feeds to the channel.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/dalnet/chanbridge/internal/bot"
)

const (
	DefaultInterval = 60 * time.Second
	fetchTimeout    = 30 * time.Second
)

// Fetcher retrieves and parses a feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*gofeed.Feed, error)
}

// HTTPFetcher fetches feeds with gofeed.
type HTTPFetcher struct {
	parser *gofeed.Parser
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	p := gofeed.NewParser()
	if client != nil {
		p.Client = client
	}
	p.UserAgent = "chanbridge"
	return &HTTPFetcher{parser: p}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	return f.parser.ParseURLWithContext(url, ctx)
}

// Poller remembers every item it has seen across a set of feeds. The
// first poll only records what's already there.
//
// A Poller is driven by a single timer goroutine and is not safe for
// concurrent use.
type Poller struct {
	urls    []string
	fetcher Fetcher
	log     *zap.Logger
	seen    map[string]struct{}
	seeded  bool
}

func NewPoller(urls []string, fetcher Fetcher, log *zap.Logger) *Poller {
	return &Poller{
		urls:    urls,
		fetcher: fetcher,
		log:     log,
		seen:    make(map[string]struct{}),
	}
}

// Poll fetches each feed in turn and returns the message for the first
// unseen item, if any. Later unseen items are left for the next poll.
func (p *Poller) Poll(ctx context.Context) (string, bool) {
	seeding := !p.seeded
	p.seeded = true
	for _, url := range p.urls {
		feed, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			p.log.Warn("Feed fetch failed", zap.String("url", url), zap.Error(err))
			continue
		}
		for _, item := range feed.Items {
			key := itemKey(item)
			if key == "" {
				continue
			}
			if _, ok := p.seen[key]; ok {
				continue
			}
			p.seen[key] = struct{}{}
			if !seeding {
				return Format(feed, item, url), true
			}
		}
	}
	if seeding {
		p.log.Info("Feeds seeded", zap.Int("feeds", len(p.urls)), zap.Int("items", p.Seen()))
	}
	return "", false
}

// Seen is the number of items recorded so far.
func (p *Poller) Seen() int {
	return len(p.seen)
}

func itemKey(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// Format renders an item as "<title>: <link> (via <feed title>)", naming
// the feed by url when it has no title.
func Format(feed *gofeed.Feed, item *gofeed.Item, url string) string {
	source := feed.Title
	if source == "" {
		source = url
	}
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	return fmt.Sprintf("%s: %s (via %s)", item.Title, link, source)
}

// Behavior polls feeds on a timer and posts new items.
type Behavior struct {
	poller   *Poller
	interval time.Duration
}

func New(poller *Poller, interval time.Duration) *Behavior {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Behavior{poller: poller, interval: interval}
}

func (b *Behavior) Name() string { return "feed" }

func (b *Behavior) Handlers() []bot.Handler {
	return []bot.Handler{bot.OnTimer(b.interval, b.poll)}
}

func (b *Behavior) poll(ctx context.Context, c *bot.Context) {
	if msg, ok := b.poller.Poll(ctx); ok {
		c.Send(msg)
	}
}
