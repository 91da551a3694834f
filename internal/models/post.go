package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostImage is one image embedded in a post body. The derived public URL is
// /uploads/{uuid}{extension}; the thumbnail lives at /uploads/thumbs with the
// same filename. A record whose URL is no longer referenced by the post body
// is an orphan and gets cleaned up on the next edit.
type PostImage struct {
	OriginalName string    `json:"originalName" bson:"originalName"`
	UUID         string    `json:"uuid" bson:"uuid"`
	Extension    string    `json:"extension" bson:"extension"`
	Mime         string    `json:"mime" bson:"mime"`
	Size         int64     `json:"size" bson:"size"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// URL returns the public path the image is served under.
func (i PostImage) URL() string {
	return "/uploads/" + i.UUID + i.Extension
}

// ThumbPath returns the storage-relative path of the thumbnail variant.
func (i PostImage) ThumbPath() string {
	return "thumbs/" + i.UUID + i.Extension
}

type Post struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Author     primitive.ObjectID   `json:"author" bson:"author"`
	Title      string               `json:"title" bson:"title" validate:"required"`
	Body       string               `json:"body" bson:"body" validate:"required"`
	Slug       string               `json:"slug" bson:"slug"`
	Images     []PostImage          `json:"images" bson:"images"`
	Categories []primitive.ObjectID `json:"categories,omitempty" bson:"categories,omitempty"`
	Locale     Locale               `json:"locale" bson:"locale"`
	Likes      []primitive.ObjectID `json:"likes,omitempty" bson:"likes,omitempty"`
	Views      int64                `json:"views" bson:"views"`
	CreatedAt  time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt" bson:"updatedAt"`
}
