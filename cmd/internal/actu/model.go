// Package actu implements ephemeral multi-part stories shared with a chosen set of recipients
// for 24 hours.
package actu

import (
	"slices"
	"time"
)

// Lifetime is how long an actu stays visible.
const Lifetime = 24 * time.Hour

// PartType is the kind of one actu part.
type PartType string

const (
	PartText  PartType = "text"
	PartPhoto PartType = "photo"
	PartVideo PartType = "video"
	PartAudio PartType = "audio"
	PartGIF   PartType = "gif"
)

// Valid reports whether t is a known part type.
func (t PartType) Valid() bool {
	switch t {
	case PartText, PartPhoto, PartVideo, PartAudio, PartGIF:
		return true
	}
	return false
}

// Part is one slide of an actu.
type Part struct {
	Type         PartType `bson:"type" json:"type"`
	URL          string   `bson:"url,omitempty" json:"url,omitempty"`
	Text         string   `bson:"text,omitempty" json:"text,omitempty"`
	Duration     int      `bson:"duration,omitempty" json:"duration,omitempty"`
	ThumbnailURL string   `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	PreviewURL   string   `bson:"previewUrl,omitempty" json:"previewUrl,omitempty"`
}

// View records that a recipient opened the actu.
type View struct {
	ViewerID     string    `bson:"viewerId" json:"viewerId"`
	ViewedAt     time.Time `bson:"viewedAt" json:"viewedAt"`
	ViewDuration int       `bson:"viewDuration" json:"viewDuration"`
}

// Actu is a stored story.
type Actu struct {
	ID         string    `bson:"_id" json:"_id"`
	Parts      []Part    `bson:"parts" json:"parts"`
	Owner      string    `bson:"owner" json:"owner"`
	Recipients []string  `bson:"recipients" json:"recipients"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt"`
	Views      []View    `bson:"views" json:"views"`
	IsActive   bool      `bson:"isActive" json:"isActive"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (a Actu) clone() Actu {
	a.Parts = slices.Clone(a.Parts)
	a.Recipients = slices.Clone(a.Recipients)
	a.Views = slices.Clone(a.Views)
	return a
}

// Visible reports whether a recipient may still see a at now.
func (a Actu) Visible(now time.Time) bool {
	return a.IsActive && a.ExpiresAt.After(now)
}

// Summary is what recipients receive, with the owner's profile resolved.
type Summary struct {
	ID                string    `json:"_id"`
	Owner             string    `json:"owner"`
	OwnerName         string    `json:"ownerName,omitempty"`
	OwnerProfileImage string    `json:"ownerProfileImage,omitempty"`
	Parts             []Part    `json:"parts"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
}
