package state

import (
	"sync"
	"testing"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []Path
}

func (r *recorder) handler(p Path) Handler {
	return func(model.State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, p)
	}
}

func (r *recorder) seen() []Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Path(nil), r.calls...)
}

func newRecordedStore() (*Store, *recorder) {
	st := New(model.NewState())
	rec := &recorder{}
	for _, p := range []Path{PathForm, PathLoadingStatus, PathFeeds, PathPosts, PathSeenPosts, PathModalPostID} {
		st.Subscribe(p, rec.handler(p))
	}
	return st, rec
}

func TestApplyNotifiesExactPathOnly(t *testing.T) {
	st, rec := newRecordedStore()

	st.Apply(PathPosts, func(s *model.State) {
		s.Posts = append([]model.Post{{ID: "1", Link: "a"}}, s.Posts...)
	})

	assert.Equal(t, []Path{PathPosts}, rec.seen())
}

func TestApplyUnregisteredPathRendersNothing(t *testing.T) {
	st, rec := newRecordedStore()

	st.Apply(PathLoadingError, func(s *model.State) {
		s.LoadingProcess.Error = model.ErrorNetwork
	})
	st.Apply(Path("loadingProcess"), func(s *model.State) {})

	assert.Empty(t, rec.seen())
	assert.Equal(t, model.ErrorNetwork, st.GetState().LoadingProcess.Error)
}

func TestHandlerReceivesPostMutationSnapshot(t *testing.T) {
	st := New(model.NewState())
	var got model.State
	st.Subscribe(PathFeeds, func(s model.State) { got = s })

	st.Apply(PathFeeds, func(s *model.State) {
		s.Feeds = append(s.Feeds, model.Feed{ID: "f1", URL: "https://example.com/rss"})
	})

	require.Len(t, got.Feeds, 1)
	got.Feeds[0].URL = "mutated"
	assert.Equal(t, "https://example.com/rss", st.GetState().Feeds[0].URL)
}

func TestApplyIfSkipsHandlersWhenUnchanged(t *testing.T) {
	st, rec := newRecordedStore()

	changed := st.ApplyIf(PathPosts, func(*model.State) bool { return false })
	assert.False(t, changed)
	assert.Empty(t, rec.seen())

	changed = st.ApplyIf(PathPosts, func(s *model.State) bool {
		s.Posts = append(s.Posts, model.Post{ID: "p"})
		return true
	})
	assert.True(t, changed)
	assert.Equal(t, []Path{PathPosts}, rec.seen())
}

func TestUnsubscribe(t *testing.T) {
	st := New(model.NewState())
	calls := 0
	unsubscribe := st.Subscribe(PathForm, func(model.State) { calls++ })
	other := 0
	st.Subscribe(PathForm, func(model.State) { other++ })

	st.Apply(PathForm, func(s *model.State) { s.Form.Valid = true })
	unsubscribe()
	st.Apply(PathForm, func(s *model.State) { s.Form.Valid = false })

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
	assert.True(t, st.Subscribed(PathForm))
	assert.False(t, st.Subscribed(PathModalPostID))
}

func TestGetStateIsACopy(t *testing.T) {
	st := New(model.State{})
	s := st.GetState()
	s.SeenPosts["x"] = struct{}{}
	assert.False(t, st.GetState().IsSeen("x"))
}

func TestConcurrentApplySerializesHandlers(t *testing.T) {
	st := New(model.NewState())
	var active, maxActive int
	var mu sync.Mutex
	st.Subscribe(PathPosts, func(s model.State) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Apply(PathPosts, func(s *model.State) {
				s.Posts = append(s.Posts, model.Post{})
			})
		}()
	}
	wg.Wait()

	assert.Len(t, st.GetState().Posts, 50)
	assert.Equal(t, 1, maxActive)
}
