// Package i18n provides localized UI strings and error messages.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/bryan-buckman/rssagg/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// DefaultLanguage is used when the requested language is not bundled.
const DefaultLanguage = "en"

// Translator resolves dotted keys such as "errors.network".
type Translator struct {
	lang     string
	messages map[string]string
	fallback map[string]string
}

// New returns a translator for lang, falling back to the default language
// for unknown languages and missing keys.
func New(lang string) (*Translator, error) {
	fallback, err := load(DefaultLanguage)
	if err != nil {
		return nil, err
	}
	if lang == "" || lang == DefaultLanguage {
		return &Translator{lang: DefaultLanguage, messages: fallback, fallback: fallback}, nil
	}
	messages, err := load(lang)
	if err != nil {
		return &Translator{lang: DefaultLanguage, messages: fallback, fallback: fallback}, nil
	}
	return &Translator{lang: lang, messages: messages, fallback: fallback}, nil
}

// Language returns the active language code.
func (t *Translator) Language() string { return t.lang }

// T returns the message for key. A missing key resolves to errors.unknown
// for error keys and to the key itself otherwise.
func (t *Translator) T(key string) string {
	if msg, ok := t.messages[key]; ok {
		return msg
	}
	if msg, ok := t.fallback[key]; ok {
		return msg
	}
	if strings.HasPrefix(key, "errors.") && key != "errors.unknown" {
		return t.T("errors.unknown")
	}
	return key
}

// Error returns the user-facing text for an error kind.
func (t *Translator) Error(kind model.ErrorKind) string {
	return t.T(kind.MessageKey())
}

func load(lang string) (map[string]string, error) {
	data, err := localesFS.ReadFile(path.Join("locales", lang+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("locale %s: %w", lang, err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse locale %s: %w", lang, err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
