// Package model defines shared data structures.
package model

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Feed represents a tracked RSS source.
type Feed struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Post represents a single item belonging to a feed.
type Post struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channelId"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// NewFeed creates a feed with a generated ID.
func NewFeed(url, title, description string) Feed {
	return Feed{
		ID:          uuid.NewString(),
		URL:         url,
		Title:       title,
		Description: description,
	}
}

// NewPost creates a post for the given feed with a generated ID.
func NewPost(channelID, title, link, description string) Post {
	return Post{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		Title:       title,
		Link:        link,
		Description: description,
	}
}

// LoadingStatus is the outcome of the most recent manual submission.
type LoadingStatus string

const (
	LoadingIdle    LoadingStatus = "idle"
	LoadingLoading LoadingStatus = "loading"
	LoadingFailed  LoadingStatus = "failed"
)

// LoadingProcess describes the in-flight or last manual submission.
type LoadingProcess struct {
	Status LoadingStatus `json:"status"`
	Error  ErrorKind     `json:"error,omitempty"`
}

// FormStatus is the state of the subscription form.
type FormStatus string

const (
	FormFilling FormStatus = "filling"
)

// FormState describes current form validity.
type FormState struct {
	Status FormStatus `json:"status"`
	Error  ErrorKind  `json:"error,omitempty"`
	Valid  bool       `json:"valid"`
}

// Modal holds the post selected for the detail view.
type Modal struct {
	PostID string `json:"postId,omitempty"`
}

// State is the application state tree.
type State struct {
	Feeds          []Feed
	Posts          []Post
	SeenPosts      map[string]struct{}
	LoadingProcess LoadingProcess
	Form           FormState
	Modal          Modal
}

// NewState returns the initial state.
func NewState() State {
	return State{
		Feeds:          []Feed{},
		Posts:          []Post{},
		SeenPosts:      make(map[string]struct{}),
		LoadingProcess: LoadingProcess{Status: LoadingIdle},
		Form:           FormState{Status: FormFilling},
	}
}

// Clone returns a deep copy that shares nothing with s.
func (s State) Clone() State {
	c := s
	c.Feeds = append([]Feed(nil), s.Feeds...)
	c.Posts = append([]Post(nil), s.Posts...)
	c.SeenPosts = make(map[string]struct{}, len(s.SeenPosts))
	for id := range s.SeenPosts {
		c.SeenPosts[id] = struct{}{}
	}
	return c
}

// FeedURLs returns the URLs of all tracked feeds.
func (s State) FeedURLs() []string {
	return lo.Map(s.Feeds, func(f Feed, _ int) string { return f.URL })
}

// PostsForFeed returns the posts belonging to the given feed.
func (s State) PostsForFeed(feedID string) []Post {
	return lo.Filter(s.Posts, func(p Post, _ int) bool { return p.ChannelID == feedID })
}

// FindPost looks up a post by ID.
func (s State) FindPost(id string) (Post, bool) {
	return lo.Find(s.Posts, func(p Post) bool { return p.ID == id })
}

// IsSeen reports whether the user has opened the post.
func (s State) IsSeen(postID string) bool {
	_, ok := s.SeenPosts[postID]
	return ok
}

// SeenIDs returns the seen post IDs in no particular order.
func (s State) SeenIDs() []string {
	return lo.Keys(s.SeenPosts)
}
