// Package poller periodically re-fetches tracked feeds and merges new posts.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/metrics"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/rss"
	"github.com/bryan-buckman/rssagg/internal/state"
	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the delay between the end of one round and the start
// of the next.
const DefaultInterval = 5 * time.Second

// Source fetches raw feed content. *rss.Fetcher satisfies it.
type Source interface {
	FetchLimited(ctx context.Context, feedURL string) (string, error)
}

// Config tunes the poller.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration // per feed fetch
	Concurrency int
	// Schedule overrides the constant Interval policy.
	Schedule backoff.BackOff
	Metrics  *metrics.Metrics
}

// Result summarizes one round.
type Result struct {
	Feeds    int
	NewPosts int
	Failures int
}

// Poller runs rounds until stopped.
type Poller struct {
	store    *state.Store
	source   Source
	cfg      Config
	schedule backoff.BackOff

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates a poller over store.
func New(store *state.Store, source Source, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	schedule := cfg.Schedule
	if schedule == nil {
		schedule = backoff.NewConstantBackOff(cfg.Interval)
	}
	return &Poller{
		store:    store,
		source:   source,
		cfg:      cfg,
		schedule: schedule,
	}
}

// Start begins the polling loop. The first round runs after one delay.
// Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

// Stop cancels the pending delay or in-flight round and waits for the loop
// to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	p.schedule.Reset()
	for {
		wait := p.schedule.NextBackOff()
		if wait == backoff.Stop {
			logger.Infof("[poller] schedule exhausted, stopping")
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		res := p.RunOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Debugf("[poller] round done: feeds=%d new=%d failed=%d", res.Feeds, res.NewPosts, res.Failures)
	}
}

// RunOnce fetches every tracked feed concurrently and merges new posts.
// Failures are logged and do not affect other feeds.
func (p *Poller) RunOnce(ctx context.Context) Result {
	started := time.Now()
	feeds := p.store.GetState().Feeds

	var (
		mu  sync.Mutex
		res = Result{Feeds: len(feeds)}
		g   errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)

	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			added, err := p.pollFeed(ctx, feed)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures++
				kind := rss.Classify(err)
				p.cfg.Metrics.PollError(kind)
				logger.Warnf("[poller] %s (%s): %v", feed.URL, kind, err)
				return nil
			}
			res.NewPosts += added
			return nil
		})
	}
	_ = g.Wait()

	p.cfg.Metrics.PollRound(time.Since(started), res.NewPosts)
	return res
}

func (p *Poller) pollFeed(ctx context.Context, feed model.Feed) (int, error) {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	content, err := p.source.FetchLimited(fctx, feed.URL)
	if err != nil {
		return 0, err
	}
	ch, err := rss.Parse(content)
	if err != nil {
		return 0, err
	}

	var added []model.Post
	p.store.ApplyIf(state.PathPosts, func(s *model.State) bool {
		added = MergeNewPosts(s, feed.ID, ch.Items)
		return len(added) > 0
	})
	return len(added), nil
}

// MergeNewPosts prepends the items whose link is not yet known for feedID
// and returns the posts it added. Items repeating a link within the batch
// are added once.
func MergeNewPosts(s *model.State, feedID string, items []rss.Item) []model.Post {
	known := lo.SliceToMap(s.PostsForFeed(feedID), func(p model.Post) (string, struct{}) {
		return p.Link, struct{}{}
	})
	fresh := lo.Filter(items, func(it rss.Item, _ int) bool {
		_, ok := known[it.Link]
		return !ok
	})
	fresh = lo.UniqBy(fresh, func(it rss.Item) string { return it.Link })
	if len(fresh) == 0 {
		return nil
	}

	added := lo.Map(fresh, func(it rss.Item, _ int) model.Post {
		return model.NewPost(feedID, it.Title, it.Link, it.Description)
	})
	posts := make([]model.Post, 0, len(added)+len(s.Posts))
	posts = append(posts, added...)
	s.Posts = append(posts, s.Posts...)
	return added
}
