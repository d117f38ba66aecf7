// Package opml handles importing and exporting OPML subscription lists.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/samber/lo"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a feed when XMLURL is set, otherwise a group of outlines.
type Outline struct {
	Text        string    `xml:"text,attr"`
	Title       string    `xml:"title,attr,omitempty"`
	Type        string    `xml:"type,attr,omitempty"`
	XMLURL      string    `xml:"xmlUrl,attr,omitempty"`
	Description string    `xml:"description,attr,omitempty"`
	Outlines    []Outline `xml:"outline,omitempty"`
}

// Entry is one subscription found in a document.
type Entry struct {
	Title string
	URL   string
}

// Parse reads an OPML document and returns its subscriptions in document
// order. Groups are flattened and repeated URLs are kept once.
func Parse(r io.Reader) ([]Entry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}

	var entries []Entry
	var walk func(outlines []Outline)
	walk = func(outlines []Outline) {
		for _, o := range outlines {
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, Entry{Title: title, URL: url})
				continue
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	return lo.UniqBy(entries, func(e Entry) string { return e.URL }), nil
}

// Export renders feeds as an OPML 2.0 document in the order given.
func Export(title string, feeds []model.Feed) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}
	doc.Body.Outlines = lo.Map(feeds, func(f model.Feed, _ int) Outline {
		return Outline{
			Text:        f.Title,
			Title:       f.Title,
			Type:        "rss",
			XMLURL:      f.URL,
			Description: f.Description,
		}
	})

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
