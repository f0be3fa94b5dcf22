// Package post implements the public post feed: posts with up to five media files, shown to
// the owner's contacts.
package post

import (
	"maps"
	"slices"
	"time"
)

// MaxFiles is the number of media files a post may carry.
const MaxFiles = 5

// Type is the layout of a post.
type Type string

const (
	TypeText       Type = "text"
	TypeImage      Type = "image"
	TypeVideo      Type = "video"
	TypeClash      Type = "clash"
	TypeMultiImage Type = "multiImage"
)

// Valid reports whether t is a known post type.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeClash, TypeMultiImage:
		return true
	}
	return false
}

// Post is a stored post. Name and ProfileImage are copied from the owner at creation.
type Post struct {
	ID             string          `bson:"_id" json:"id"`
	Owner          string          `bson:"owner" json:"userID"`
	Name           string          `bson:"name,omitempty" json:"name,omitempty"`
	ProfileImage   string          `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	Type           Type            `bson:"type" json:"type"`
	Title          string          `bson:"title" json:"title"`
	Content        string          `bson:"content,omitempty" json:"contentText,omitempty"`
	MediaURLs      []string        `bson:"mediaUrls" json:"mediaUrls"`
	ContentFlags   map[string]bool `bson:"contentFlags" json:"contentFlags"`
	Visibility     string          `bson:"visibility" json:"visibility"`
	AppearOnSearch bool            `bson:"appearOnSearch" json:"appearOnSearch"`
	CreatedAt      time.Time       `bson:"createdAt" json:"createdAt"`
	Uploaded       bool            `bson:"uploaded" json:"-"`
}

func (p Post) clone() Post {
	p.MediaURLs = slices.Clone(p.MediaURLs)
	p.ContentFlags = maps.Clone(p.ContentFlags)
	return p
}
