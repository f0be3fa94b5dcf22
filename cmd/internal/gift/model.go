// Package gift implements short-lived shares sent to chosen recipients and shown to the owner's
// contacts for 48 hours, with like, dislike and view tracking.
package gift

import (
	"slices"
	"time"
)

// Lifetime is how long a gift stays visible.
const Lifetime = 48 * time.Hour

// Type is the kind of content a gift carries.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Valid reports whether t is a known gift type.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo:
		return true
	}
	return false
}

// Reaction is a like or a dislike.
type Reaction string

const (
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
)

// field is the document array holding the users who reacted with r.
func (r Reaction) field() string {
	if r == Dislike {
		return "dislikeBy"
	}
	return "likedBy"
}

// Gift is a stored gift. Content is either inline text or the URL of the uploaded media.
type Gift struct {
	ID           string    `bson:"_id" json:"_id"`
	Type         Type      `bson:"type" json:"type"`
	Content      string    `bson:"content" json:"content"`
	Caption      string    `bson:"caption,omitempty" json:"caption,omitempty"`
	Owner        string    `bson:"owner" json:"owner"`
	Recipients   []string  `bson:"recipients" json:"recipients"`
	ViewedBy     []string  `bson:"viewedBy" json:"viewedBy"`
	ViewersCount int       `bson:"viewersCount" json:"viewersCount"`
	LikedBy      []string  `bson:"likedBy" json:"likedBy"`
	DislikeBy    []string  `bson:"dislikeBy" json:"dislikeBy"`
	IsActive     bool      `bson:"isActive" json:"isActive"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
}

func (g Gift) clone() Gift {
	g.Recipients = slices.Clone(g.Recipients)
	g.ViewedBy = slices.Clone(g.ViewedBy)
	g.LikedBy = slices.Clone(g.LikedBy)
	g.DislikeBy = slices.Clone(g.DislikeBy)
	return g
}

// Visible reports whether g may still be shown at now.
func (g Gift) Visible(now time.Time) bool {
	return g.IsActive && g.ExpiresAt.After(now)
}
