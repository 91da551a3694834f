package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Locale string

const (
	LocaleEN Locale = "en"
	LocaleSK Locale = "sk"
)

// SupportedLocales is the closed set of locales a category or post may carry.
var SupportedLocales = []Locale{LocaleEN, LocaleSK}

func IsSupportedLocale(l Locale) bool {
	for _, s := range SupportedLocales {
		if l == s {
			return true
		}
	}
	return false
}

// Category is one node of the admin-curated category tree. ParentID is nil
// for root categories. Order is a positive integer unique only among the
// siblings sharing the same ParentID; for a given parent the order values
// are always exactly 1..n with no gaps.
type Category struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name     string              `json:"name" bson:"name" validate:"required"`
	ParentID *primitive.ObjectID `json:"parentId" bson:"parent_id"`
	Order    int                 `json:"order" bson:"order"`
	Locale   Locale              `json:"locale" bson:"locale"`
}
