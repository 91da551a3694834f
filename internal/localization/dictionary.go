// Package localization holds the per-locale message dictionaries. The active
// dictionary is resolved once per request by the locale middleware and carried
// in the request context; nothing here is mutable process-wide state.
package localization

import (
	"context"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

type Dictionary struct {
	Saved              string
	InvalidData        string
	NotFound           string
	Unauthorized       string
	AlreadyAtTop       string
	AlreadyAtBottom    string
	OrderOutOfSync     string
	NewCategory        string
	PostDeleted        string
	UserExists         string
	InvalidCredentials string
	SomethingWentWrong string
}

var dictionaries = map[models.Locale]Dictionary{
	models.LocaleEN: {
		Saved:              "Saved",
		InvalidData:        "Invalid data",
		NotFound:           "Not found",
		Unauthorized:       "Unauthorized",
		AlreadyAtTop:       "Category is already at the top",
		AlreadyAtBottom:    "Category is already at the bottom",
		OrderOutOfSync:     "Category order is out of sync",
		NewCategory:        "New",
		PostDeleted:        "Post deleted",
		UserExists:         "User already exists",
		InvalidCredentials: "Invalid email or password",
		SomethingWentWrong: "Something went wrong",
	},
	models.LocaleSK: {
		Saved:              "Ulozene",
		InvalidData:        "Neplatne data",
		NotFound:           "Nenajdene",
		Unauthorized:       "Neopravneny pristup",
		AlreadyAtTop:       "Kategoria je uz na vrchu",
		AlreadyAtBottom:    "Kategoria je uz na spodku",
		OrderOutOfSync:     "Poradie kategorii nie je synchronizovane",
		NewCategory:        "Nova",
		PostDeleted:        "Clanok vymazany",
		UserExists:         "Pouzivatel uz existuje",
		InvalidCredentials: "Nespravny email alebo heslo",
		SomethingWentWrong: "Nieco sa pokazilo",
	},
}

// Dict returns the dictionary for the given locale, falling back to English
// for anything outside the supported set.
func Dict(locale models.Locale) Dictionary {
	if d, ok := dictionaries[locale]; ok {
		return d
	}
	return dictionaries[models.LocaleEN]
}

type ctxKey struct{}

// WithLocale stores the request locale in the context.
func WithLocale(ctx context.Context, locale models.Locale) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

// LocaleFromContext returns the request locale, defaulting to English.
func LocaleFromContext(ctx context.Context) models.Locale {
	if l, ok := ctx.Value(ctxKey{}).(models.Locale); ok {
		return l
	}
	return models.LocaleEN
}

// FromContext returns the dictionary for the locale carried by ctx.
func FromContext(ctx context.Context) Dictionary {
	return Dict(LocaleFromContext(ctx))
}
