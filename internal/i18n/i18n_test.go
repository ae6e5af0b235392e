// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

import (
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInitConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, Init())
		})
	}
	wg.Wait()
	require.NotNil(t, loaded)
	assert.Len(t, loaded.localizers, len(Supported))
}

func TestCatalogsCoverTheSameMessages(t *testing.T) {
	keys := func(file string) map[string]bool {
		var messages map[string]any
		data, err := translationFS.ReadFile(file)
		require.NoError(t, err)
		require.NoError(t, toml.Unmarshal(data, &messages))
		out := make(map[string]bool, len(messages))
		for k := range messages {
			out[k] = true
		}
		return out
	}

	en := keys("translations/active.en.toml")
	hi := keys("translations/active.hi.toml")
	for k := range en {
		assert.True(t, hi[k], "message %q has no Hindi translation", k)
	}
	for k := range hi {
		assert.True(t, en[k], "message %q exists only in Hindi", k)
	}
}

func TestT(t *testing.T) {
	en := WithLocale(context.Background(), language.English)
	hi := WithLocale(context.Background(), language.Hindi)

	assert.Equal(t, "Ballot Ledger", T(en, "app_name"))
	assert.Equal(t, "Ballot Ledger", T(context.Background(), "app_name"))

	assert.NotEqual(t, "already_voted", T(hi, "already_voted"))
	assert.NotEqual(t, T(en, "already_voted"), T(hi, "already_voted"))

	assert.Equal(t, "no_such_message", T(en, "no_such_message"))
	assert.Equal(t, "no_such_message", T(hi, "no_such_message"))
}

func TestTUnsupportedLocaleFallsBackToEnglish(t *testing.T) {
	ctx := WithLocale(context.Background(), language.French)

	assert.Equal(t, "fr", GetLocale(ctx))
	assert.Equal(t, "Ballot Ledger", T(ctx, "app_name"))
}

func TestTData(t *testing.T) {
	ctx := WithLocale(context.Background(), language.English)

	body := TData(ctx, "otp_body", map[string]any{"Code": "123456", "Minutes": 5})
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "5 minutes")

	hindi := TData(WithLocale(context.Background(), language.Hindi), "otp_body", map[string]any{"Code": "654321", "Minutes": 5})
	assert.Contains(t, hindi, "654321")
}

func TestLoadMissingLanguageFallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"translations/active.en.toml": {Data: []byte(`greeting = "Hello"` + "\nfarewell = \"Bye\"\n")},
		"translations/active.hi.toml": {Data: []byte(`greeting = "नमस्ते"` + "\n")},
	}

	c, err := load(fsys)
	require.NoError(t, err)

	hi := c.localizers["hi"]
	require.NotNil(t, hi)

	msg, err := hi.Localize(&i18n.LocalizeConfig{MessageID: "greeting"})
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", msg)

	msg, err = hi.Localize(&i18n.LocalizeConfig{MessageID: "farewell"})
	assert.Error(t, err)
	assert.Equal(t, "Bye", msg)
}

func TestLoadRejectsBrokenCatalog(t *testing.T) {
	fsys := fstest.MapFS{
		"translations/active.en.toml": {Data: []byte("greeting = ")},
	}

	_, err := load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active.en.toml")
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		acceptLanguage string
		expected       string
	}{
		{"en", "en"},
		{"en-US", "en"},
		{"hi", "hi"},
		{"hi-IN", "hi"},
		{"fr", "en"},
		{"", "en"},
		{"hi, en;q=0.9", "hi"},
		{"en, hi;q=0.9", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.acceptLanguage, func(t *testing.T) {
			assert.Equal(t, tt.expected, baseOf(MatchLanguage(tt.acceptLanguage)))
		})
	}
}

func TestGetLocale(t *testing.T) {
	assert.Equal(t, "en", GetLocale(context.Background()))
	assert.Equal(t, "hi", GetLocale(WithLocale(context.Background(), MatchLanguage("hi-IN"))))
}
