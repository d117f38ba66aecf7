package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/bryan-buckman/rssagg/internal/model"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

// insertBatch bounds rows per INSERT to stay under bind-variable limits.
const insertBatch = 200

const schema = `
CREATE TABLE IF NOT EXISTS feeds (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	seq BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	link TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	seq BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feeds_seq ON feeds(seq);
CREATE INDEX IF NOT EXISTS idx_posts_seq ON posts(seq);
CREATE INDEX IF NOT EXISTS idx_posts_feed_id ON posts(feed_id);
`

// sqlStore is the dialect-neutral implementation; the flavor decides
// placeholders and insert-ignore syntax.
type sqlStore struct {
	conn   *sql.DB
	flavor sqlbuilder.Flavor
	name   string

	// seq orders rows for display; higher is newer.
	mu  sync.Mutex
	seq int64
}

func newSQLStore(conn *sql.DB, flavor sqlbuilder.Flavor, name string) (*sqlStore, error) {
	s := &sqlStore{conn: conn, flavor: flavor, name: name}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadSeq(); err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	return s, nil
}

func (s *sqlStore) migrate() error {
	_, err := s.conn.Exec(schema)
	return err
}

func (s *sqlStore) loadSeq() error {
	var feedSeq, postSeq int64
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM feeds").Scan(&feedSeq); err != nil {
		return err
	}
	if err := s.conn.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM posts").Scan(&postSeq); err != nil {
		return err
	}
	s.seq = max(feedSeq, postSeq)
	return nil
}

// reserve returns the first of n fresh sequence numbers.
func (s *sqlStore) reserve(n int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.seq + 1
	s.seq += int64(n)
	return first
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.conn.Close()
}

// DatabaseType returns the backend name.
func (s *sqlStore) DatabaseType() string {
	return s.name
}

// LoadFeeds returns all feeds, newest first.
func (s *sqlStore) LoadFeeds(ctx context.Context) ([]model.Feed, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "url", "title", "description").From("feeds").OrderBy("seq").Desc()
	query, args := sb.Build()

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	feeds := []model.Feed{}
	for rows.Next() {
		var f model.Feed
		if err := rows.Scan(&f.ID, &f.URL, &f.Title, &f.Description); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// LoadPosts returns all posts, newest first.
func (s *sqlStore) LoadPosts(ctx context.Context) ([]model.Post, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("id", "feed_id", "title", "link", "description").From("posts").OrderBy("seq").Desc()
	query, args := sb.Build()

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.Title, &p.Link, &p.Description); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// SaveFeeds inserts feeds; the first element is stored as the newest.
func (s *sqlStore) SaveFeeds(ctx context.Context, feeds []model.Feed) error {
	if len(feeds) == 0 {
		return nil
	}
	first := s.reserve(len(feeds))
	last := first + int64(len(feeds)) - 1

	return s.insert(ctx, "feeds", []string{"id", "url", "title", "description", "seq"}, len(feeds), func(i int) []interface{} {
		f := feeds[i]
		return []interface{}{f.ID, f.URL, f.Title, f.Description, last - int64(i)}
	})
}

// SavePosts inserts posts; the first element is stored as the newest.
func (s *sqlStore) SavePosts(ctx context.Context, posts []model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	first := s.reserve(len(posts))
	last := first + int64(len(posts)) - 1

	return s.insert(ctx, "posts", []string{"id", "feed_id", "title", "link", "description", "seq"}, len(posts), func(i int) []interface{} {
		p := posts[i]
		return []interface{}{p.ID, p.ChannelID, p.Title, p.Link, p.Description, last - int64(i)}
	})
}

func (s *sqlStore) insert(ctx context.Context, table string, cols []string, n int, row func(i int) []interface{}) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, chunk := range lo.Chunk(lo.Range(n), insertBatch) {
		ib := s.flavor.NewInsertBuilder()
		ib.InsertIgnoreInto(table).Cols(cols...)
		for _, i := range chunk {
			ib.Values(row(i)...)
		}
		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}
