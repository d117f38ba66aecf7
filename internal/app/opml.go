package app

import (
	"context"
	"io"

	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/bryan-buckman/rssagg/internal/opml"
)

// ImportResult counts the outcome of an OPML import.
type ImportResult struct {
	Added   int                        `json:"added"`
	Skipped int                        `json:"skipped"`
	Failed  map[string]model.ErrorKind `json:"failed,omitempty"`
}

// ImportOPML submits every subscription in r, one at a time, through the
// same pipeline as the form. Already tracked URLs are skipped.
func (a *App) ImportOPML(ctx context.Context, r io.Reader) (ImportResult, error) {
	entries, err := opml.Parse(r)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Failed: make(map[string]model.ErrorKind)}
	for _, e := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch kind := a.Submit(ctx, e.URL); kind {
		case model.ErrorNone:
			res.Added++
		case model.ErrorExists:
			res.Skipped++
		default:
			res.Failed[e.URL] = kind
		}
	}
	logger.Infof("[app] opml import: added=%d skipped=%d failed=%d", res.Added, res.Skipped, len(res.Failed))
	return res, nil
}

// ExportOPML renders the tracked feeds as an OPML document.
func (a *App) ExportOPML() ([]byte, error) {
	return opml.Export("rssagg subscriptions", a.store.GetState().Feeds)
}
