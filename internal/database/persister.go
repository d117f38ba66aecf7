package database

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/state"
	"github.com/samber/lo"
)

const saveTimeout = 5 * time.Second

// Persister writes feeds and posts to a Store as they enter the state tree.
type Persister struct {
	store Store

	mu    sync.Mutex
	feeds map[string]struct{}
	posts map[string]struct{}
}

// NewPersister returns a persister that treats everything in initial as
// already stored.
func NewPersister(store Store, initial model.State) *Persister {
	return &Persister{
		store: store,
		feeds: lo.SliceToMap(initial.Feeds, func(f model.Feed) (string, struct{}) { return f.ID, struct{}{} }),
		posts: lo.SliceToMap(initial.Posts, func(p model.Post) (string, struct{}) { return p.ID, struct{}{} }),
	}
}

// Register subscribes the persister to feed and post mutations.
// The returned func unsubscribes.
func (p *Persister) Register(st *state.Store) func() {
	offFeeds := st.Subscribe(state.PathFeeds, p.saveFeeds)
	offPosts := st.Subscribe(state.PathPosts, p.savePosts)
	return func() {
		offFeeds()
		offPosts()
	}
}

// Restore loads the stored feeds and posts into a fresh state.
func Restore(ctx context.Context, store Store) (model.State, error) {
	s := model.NewState()
	feeds, err := store.LoadFeeds(ctx)
	if err != nil {
		return s, err
	}
	posts, err := store.LoadPosts(ctx)
	if err != nil {
		return s, err
	}
	s.Feeds = feeds
	s.Posts = posts
	return s, nil
}

func (p *Persister) saveFeeds(s model.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := lo.Filter(s.Feeds, func(f model.Feed, _ int) bool {
		_, ok := p.feeds[f.ID]
		return !ok
	})
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.store.SaveFeeds(ctx, pending); err != nil {
		logger.Errorf("[database] save %d feeds: %v", len(pending), err)
		return
	}
	for _, f := range pending {
		p.feeds[f.ID] = struct{}{}
	}
}

func (p *Persister) savePosts(s model.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := lo.Filter(s.Posts, func(post model.Post, _ int) bool {
		_, ok := p.posts[post.ID]
		return !ok
	})
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.store.SavePosts(ctx, pending); err != nil {
		logger.Errorf("[database] save %d posts: %v", len(pending), err)
		return
	}
	for _, post := range pending {
		p.posts[post.ID] = struct{}{}
	}
}
