// Package user manages accounts: registration, profile updates, contact matching and the
// company list of each user.
package user

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Location is where a user says they live.
type Location struct {
	Country  string `bson:"country" json:"country"`
	City     string `bson:"city" json:"city"`
	District string `bson:"district" json:"district"`
}

// User is an account. ID is the internal id used everywhere else (rooms, owners, recipients);
// UserID is the human-readable handle.
type User struct {
	ID            string    `bson:"_id" json:"id"`
	UserID        string    `bson:"userID" json:"userID"`
	Type          string    `bson:"type" json:"type"`
	Anonymous     string    `bson:"anonymous" json:"anonymous"`
	Name          string    `bson:"name" json:"name"`
	Gender        string    `bson:"gender" json:"gender"`
	Location      Location  `bson:"location" json:"location"`
	Badge         string    `bson:"badge" json:"badge"`
	IsVerified    bool      `bson:"isVerified" json:"isVerified"`
	Secure        bool      `bson:"secure" json:"secure"`
	ContentLike   int       `bson:"contentLike" json:"contentLike"`
	HasAccount    bool      `bson:"hasAccount" json:"hasAccount"`
	IsLoggedIn    bool      `bson:"isLoggedIn" json:"isLoggedIn"`
	Phone         string    `bson:"phone,omitempty" json:"phone,omitempty"`
	PhoneDigits   string    `bson:"phoneDigits,omitempty" json:"-"`
	Dob           string    `bson:"dob,omitempty" json:"dob,omitempty"`
	Regions       []string  `bson:"regions,omitempty" json:"regions,omitempty"`
	Status        string    `bson:"status,omitempty" json:"status,omitempty"`
	Bio           string    `bson:"bio,omitempty" json:"bio,omitempty"`
	ProfileImage  string    `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	Companies     []string  `bson:"companies" json:"companies"`
	ContactsPhone []string  `bson:"contactsPhone" json:"contactsPhone"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Profile is the public face of a user shown next to their content.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Update lists profile fields to change; nil fields are left alone.
type Update struct {
	Anonymous     *string   `json:"anonymous,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Dob           *string   `json:"dob,omitempty"`
	Regions       *[]string `json:"regions,omitempty"`
	Status        *string   `json:"status,omitempty"`
	Bio           *string   `json:"bio,omitempty"`
	ProfileImage  *string   `json:"profileImage,omitempty"`
	ContactsPhone *[]string `json:"contactsPhone,omitempty"`
}

func (u Update) empty() bool {
	return u.Anonymous == nil && u.Name == nil && u.Phone == nil && u.Dob == nil && u.Regions == nil &&
		u.Status == nil && u.Bio == nil && u.ProfileImage == nil && u.ContactsPhone == nil
}

// apply mutates usr in place.
func (u Update) apply(usr *User) {
	if u.Anonymous != nil {
		usr.Anonymous = *u.Anonymous
	}
	if u.Name != nil {
		usr.Name = *u.Name
	}
	if u.Phone != nil {
		usr.Phone = *u.Phone
		usr.PhoneDigits = NormalizePhone(*u.Phone)
	}
	if u.Dob != nil {
		usr.Dob = *u.Dob
	}
	if u.Regions != nil {
		usr.Regions = append([]string(nil), (*u.Regions)...)
	}
	if u.Status != nil {
		usr.Status = *u.Status
	}
	if u.Bio != nil {
		usr.Bio = *u.Bio
	}
	if u.ProfileImage != nil {
		usr.ProfileImage = *u.ProfileImage
	}
	if u.ContactsPhone != nil {
		usr.ContactsPhone = append([]string(nil), (*u.ContactsPhone)...)
	}
}

// ContactMatch is one entry of a contact check.
type ContactMatch struct {
	Phone      string  `json:"phone"`
	HasAccount bool    `json:"hasAccount"`
	UserID     *string `json:"userID"`
	Badge      string  `json:"badge"`
	Type       string  `json:"type"`
	Secure     bool    `json:"secure"`
}

// NormalizePhone keeps only the digits of p.
func NormalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Handle builds the public handle from a display name: the lowercase ASCII letters and digits
// of name, an underscore, and the last seven digits of the unix-millisecond clock.
func Handle(name string, now time.Time) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 7 {
		ms = ms[len(ms)-7:]
	}
	return b.String() + "_" + ms
}
