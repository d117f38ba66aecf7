// Package app wires the state tree to its renderers, fetcher, poller and
// persistence, and implements the user-facing operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryan-buckman/rssagg/internal/config"
	"github.com/bryan-buckman/rssagg/internal/database"
	"github.com/bryan-buckman/rssagg/internal/i18n"
	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/metrics"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/poller"
	"github.com/bryan-buckman/rssagg/internal/render"
	"github.com/bryan-buckman/rssagg/internal/rss"
	"github.com/bryan-buckman/rssagg/internal/state"
	"github.com/bryan-buckman/rssagg/internal/validate"
	"github.com/samber/lo"
)

// ErrUnknownPost is returned by OpenPost for an ID not in the post list.
var ErrUnknownPost = errors.New("unknown post")

// Options carries the optional collaborators of an App.
type Options struct {
	// DB restores and persists feeds and posts. Nil keeps state in memory.
	DB      database.Store
	Metrics *metrics.Metrics
}

// App owns the state store and everything subscribed to it.
type App struct {
	cfg      *config.Config
	store    *state.Store
	renderer *render.Renderer
	fetcher  *rss.Fetcher
	poller   *poller.Poller
	metrics  *metrics.Metrics

	submits sync.WaitGroup
	unsubs  []func()
}

// New restores persisted state, registers the renderer and persister and
// renders every region once.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	tr, err := i18n.New(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("load locale: %w", err)
	}
	renderer, err := render.New(tr)
	if err != nil {
		return nil, err
	}

	initial := model.NewState()
	if opts.DB != nil {
		if initial, err = database.Restore(ctx, opts.DB); err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
		logger.Infof("[app] restored %d feeds, %d posts from %s", len(initial.Feeds), len(initial.Posts), opts.DB.DatabaseType())
	}
	store := state.New(initial)

	proxy := cfg.Proxy.URL
	if cfg.Proxy.Direct {
		proxy = ""
	}
	fetcher := rss.NewFetcher(rss.FetcherConfig{
		ProxyURL:  proxy,
		UserAgent: cfg.Fetch.UserAgent,
	})

	a := &App{
		cfg:      cfg,
		store:    store,
		renderer: renderer,
		fetcher:  fetcher,
		metrics:  opts.Metrics,
		poller: poller.New(store, fetcher, poller.Config{
			Interval:    cfg.Poll.Interval,
			Timeout:     cfg.Fetch.PollTimeout,
			Concurrency: cfg.Poll.Concurrency,
			Metrics:     opts.Metrics,
		}),
	}

	// Persister first: rows are written before they are rendered.
	if opts.DB != nil {
		a.unsubs = append(a.unsubs, database.NewPersister(opts.DB, initial).Register(store))
	}
	a.unsubs = append(a.unsubs, renderer.Register(store))
	a.unsubs = append(a.unsubs, store.Subscribe(state.PathFeeds, func(s model.State) {
		a.metrics.TrackedFeeds(len(s.Feeds))
	}))

	a.metrics.TrackedFeeds(len(initial.Feeds))
	renderer.RenderAll(initial)
	return a, nil
}

// Store returns the state store.
func (a *App) Store() *state.Store { return a.store }

// Renderer returns the region renderer.
func (a *App) Renderer() *render.Renderer { return a.renderer }

// Fetcher returns the feed fetcher.
func (a *App) Fetcher() *rss.Fetcher { return a.fetcher }

// Start launches the poller unless polling is disabled.
func (a *App) Start(ctx context.Context) {
	if a.cfg.Poll.Disabled {
		logger.Infof("[app] polling disabled")
		return
	}
	a.poller.Start(ctx)
}

// Close stops the poller, waits for in-flight submissions and detaches all
// subscribers. The database, if any, belongs to the caller.
func (a *App) Close() {
	a.poller.Stop()
	a.submits.Wait()
	for _, u := range a.unsubs {
		u()
	}
	a.unsubs = nil
}

// Submit validates rawURL and, when it is valid, fetches and adds the feed.
// It returns the outcome: ErrorNone on success, a validation kind when the
// form was rejected, or the fetch/parse kind when loading failed.
func (a *App) Submit(ctx context.Context, rawURL string) model.ErrorKind {
	kind := a.accept(rawURL)
	if kind != model.ErrorNone {
		return kind
	}
	return a.load(ctx, rawURL)
}

// SubmitAsync validates rawURL synchronously and loads it in the
// background. The returned kind is a validation error or ErrorNone.
func (a *App) SubmitAsync(rawURL string) model.ErrorKind {
	kind := a.accept(rawURL)
	if kind != model.ErrorNone {
		return kind
	}
	a.submits.Add(1)
	go func() {
		defer a.submits.Done()
		a.load(context.Background(), rawURL)
	}()
	return model.ErrorNone
}

// accept runs validation and moves the form and loading status forward.
func (a *App) accept(rawURL string) model.ErrorKind {
	kind := validate.URL(rawURL, a.store.GetState().FeedURLs())
	if kind != model.ErrorNone {
		a.store.Apply(state.PathForm, func(s *model.State) {
			s.Form.Valid = false
			s.Form.Error = kind
		})
		a.metrics.Submission(kind)
		return kind
	}

	a.store.Apply(state.PathForm, func(s *model.State) {
		s.Form.Valid = true
		s.Form.Error = model.ErrorNone
	})
	a.store.Apply(state.PathLoadingStatus, func(s *model.State) {
		s.LoadingProcess = model.LoadingProcess{Status: model.LoadingLoading}
	})
	return model.ErrorNone
}

func (a *App) load(ctx context.Context, feedURL string) model.ErrorKind {
	kind := a.fetchAndMerge(ctx, feedURL)
	a.metrics.Submission(kind)
	if kind != model.ErrorNone {
		a.store.Apply(state.PathLoadingStatus, func(s *model.State) {
			s.LoadingProcess = model.LoadingProcess{Status: model.LoadingFailed, Error: kind}
		})
		return kind
	}

	a.store.Apply(state.PathLoadingStatus, func(s *model.State) {
		s.LoadingProcess = model.LoadingProcess{Status: model.LoadingIdle}
	})
	a.store.Apply(state.PathForm, func(s *model.State) {
		s.Form.Status = model.FormFilling
		s.Form.Error = model.ErrorNone
	})
	return model.ErrorNone
}

func (a *App) fetchAndMerge(ctx context.Context, feedURL string) model.ErrorKind {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Fetch.SubmitTimeout)
	defer cancel()

	ch, err := a.fetcher.FetchChannel(ctx, feedURL)
	if err != nil {
		kind := rss.Classify(err)
		logger.Warnf("[app] load %s (%s): %v", feedURL, kind, err)
		return kind
	}

	feed := model.NewFeed(feedURL, ch.Title, ch.Description)
	posts := lo.Map(ch.Items, func(it rss.Item, _ int) model.Post {
		return model.NewPost(feed.ID, it.Title, it.Link, it.Description)
	})

	added := a.store.ApplyIf(state.PathFeeds, func(s *model.State) bool {
		if lo.Contains(s.FeedURLs(), feedURL) {
			return false
		}
		s.Feeds = append([]model.Feed{feed}, s.Feeds...)
		return true
	})
	if !added {
		// Another submission of the same URL finished first.
		return model.ErrorExists
	}
	a.store.Apply(state.PathPosts, func(s *model.State) {
		s.Posts = append(append([]model.Post{}, posts...), s.Posts...)
	})
	logger.Infof("[app] added feed %s with %d posts", feedURL, len(posts))
	return model.ErrorNone
}

// OpenPost selects postID for the detail view and marks it seen.
func (a *App) OpenPost(postID string) error {
	if _, ok := a.store.GetState().FindPost(postID); !ok {
		return ErrUnknownPost
	}
	a.store.Apply(state.PathModalPostID, func(s *model.State) {
		s.Modal.PostID = postID
	})
	a.store.Apply(state.PathSeenPosts, func(s *model.State) {
		s.SeenPosts[postID] = struct{}{}
	})
	return nil
}

// CloseModal clears the detail view selection.
func (a *App) CloseModal() {
	a.store.ApplyIf(state.PathModalPostID, func(s *model.State) bool {
		if s.Modal.PostID == "" {
			return false
		}
		s.Modal.PostID = ""
		return true
	})
}

// Refresh runs one poll round now.
func (a *App) Refresh(ctx context.Context) poller.Result {
	return a.poller.RunOnce(ctx)
}
