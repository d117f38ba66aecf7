// Package validate checks candidate feed URLs.
package validate

import (
	"errors"

	"github.com/bryan-buckman/rssagg/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// urlRules is evaluated left to right; validation stops at the first failure.
const urlRules = "required,http_url"

var schema = validator.New(validator.WithRequiredStructEnabled())

// URL validates rawURL against the tracked feed URLs.
// It returns model.ErrorNone when the URL can be subscribed.
func URL(rawURL string, tracked []string) model.ErrorKind {
	if err := schema.Var(rawURL, urlRules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return model.ErrorRequired
		}
		return model.ErrorNotURL
	}
	if lo.Contains(tracked, rawURL) {
		return model.ErrorExists
	}
	return model.ErrorNone
}
