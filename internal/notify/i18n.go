package notify

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Catalog renders notification titles and bodies from the embedded locale files.
type Catalog struct {
	bundle        *i18n.Bundle
	defaultLocale string
}

func NewCatalog(defaultLocale string) (*Catalog, error) {
	if defaultLocale == "" {
		defaultLocale = "en"
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
	}

	return &Catalog{bundle: bundle, defaultLocale: defaultLocale}, nil
}

// Localize renders messageID for locale, which may be a tag or a raw Accept-Language value.
// Unknown ids come back unchanged.
func (c *Catalog) Localize(locale, messageID string, data map[string]any) string {
	l := i18n.NewLocalizer(c.bundle, locale, c.defaultLocale)

	msg, err := l.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// Render returns the title and body of a notification kind.
func (c *Catalog) Render(locale string, kind Kind, data map[string]any) (title, body string) {
	return c.Localize(locale, string(kind)+".title", data), c.Localize(locale, string(kind)+".body", data)
}
