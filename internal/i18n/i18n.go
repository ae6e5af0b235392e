// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n holds the message catalogs for error messages and the
// verification mail. Lookups fall back to English, then to the message ID.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// Supported lists the languages with a message catalog, default first.
var Supported = []language.Tag{
	language.English,
	language.Hindi,
}

var matcher = language.NewMatcher(Supported)

type catalog struct {
	localizers map[string]*i18n.Localizer
}

var (
	loaded   *catalog
	loadOnce sync.Once
	loadErr  error
)

type localeKey struct{}

// Init parses every embedded catalog. It is safe to call repeatedly and
// from several goroutines.
func Init() error {
	loadOnce.Do(func() {
		loaded, loadErr = load(translationFS)
	})
	return loadErr
}

func load(fsys fs.FS) (*catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(fsys, "translations/active.*.toml")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(fsys, file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	c := &catalog{localizers: make(map[string]*i18n.Localizer, len(Supported))}
	for _, tag := range Supported {
		c.localizers[baseOf(tag)] = i18n.NewLocalizer(bundle, tag.String())
	}
	return c, nil
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

// MatchLanguage picks the best supported language for an Accept-Language
// header value.
func MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

// WithLocale stores the base language of tag in ctx.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, baseOf(tag))
}

// GetLocale returns the locale stored in ctx, or "en".
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok {
		return locale
	}
	return "en"
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return TData(ctx, messageID, nil)
}

// TData translates a message and fills its template with data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	if err := Init(); err != nil {
		return messageID
	}
	localizer, ok := loaded.localizers[GetLocale(ctx)]
	if !ok {
		localizer = loaded.localizers["en"]
	}
	// A message missing from a catalog comes back in English together with
	// a not-found error, so only an empty result means failure.
	msg, _ := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if msg == "" {
		return messageID
	}
	return msg
}
