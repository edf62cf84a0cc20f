package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Activity is an extracurricular offering. MaxParticipants == nil means the
// activity has no capacity limit.
type Activity struct {
	ID              int64   `gorm:"primaryKey" json:"id"`
	Name            string  `gorm:"uniqueIndex;not null" json:"name"`
	Description     *string `json:"description"`
	Schedule        *string `json:"schedule"`
	MaxParticipants *int    `json:"max_participants"`
	Tags            string  `json:"tags"` // comma separated, e.g. "games,strategy"
}

func (Activity) TableName() string { return "activities" }

// TagList splits the stored tag string into trimmed, lower-cased tags.
func (a Activity) TagList() []string {
	out := []string{}
	for _, t := range strings.Split(a.Tags, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Participant links one student email to one activity. (email, activity_id)
// is unique at the storage layer.
type Participant struct {
	ID         int64    `gorm:"primaryKey" json:"id"`
	Email      string   `gorm:"size:255;not null;uniqueIndex:uq_participants_email_activity" json:"email"`
	ActivityID int64    `gorm:"not null;index;uniqueIndex:uq_participants_email_activity" json:"activity_id"`
	Activity   Activity `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Participant) TableName() string { return "participants" }

var validate = validator.New()

// ValidateEmail reports ErrInvalidEmail unless email is a well formed
// address of at most 255 characters.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// BeforeCreate rejects participants with a malformed email.
func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	return ValidateEmail(p.Email)
}
