// Package rss fetches and parses feeds.
package rss

import (
	"strings"

	"github.com/mmcdole/gofeed"
)

// Channel is a parsed feed.
type Channel struct {
	Title       string
	Description string
	Items       []Item
}

// Item is a single entry of a parsed feed.
type Item struct {
	Title       string
	Link        string
	Description string
}

// Parse converts raw feed content into a Channel.
// Content that is not a recognizable feed yields a *ParsingError.
func Parse(content string) (*Channel, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ParsingError{Reason: "empty document"}
	}

	// gofeed parsers keep per-call state, so each call gets its own.
	feed, err := gofeed.NewParser().ParseString(content)
	if err != nil {
		return nil, &ParsingError{Reason: "not a feed", Err: err}
	}

	ch := &Channel{
		Title:       feed.Title,
		Description: feed.Description,
		Items:       make([]Item, 0, len(feed.Items)),
	}
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		ch.Items = append(ch.Items, Item{
			Title:       it.Title,
			Link:        it.Link,
			Description: desc,
		})
	}
	return ch, nil
}
