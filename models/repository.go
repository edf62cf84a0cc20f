package models

import (
	"context"
	"errors"
)

var (
	ErrActivityNotFound = errors.New("Activity not found")
	ErrAlreadySignedUp  = errors.New("Student is already signed up")
	ErrActivityFull     = errors.New("Activity is full")
	ErrNotSignedUp      = errors.New("Student is not signed up for this activity")
	ErrInvalidEmail     = errors.New("Invalid email address")
)

// ActivityFilter narrows ListActivities. Zero values disable a filter.
// Filters compose with AND; entries of Tags compose with OR.
type ActivityFilter struct {
	Query           string   // substring of name or description, case-insensitive
	Day             string   // substring of schedule, case-insensitive
	MaxParticipants *int     // capacity set and <= this value
	Tags            []string // any of these tags
}

// ActivityInfo is an activity together with its participant emails in
// signup order.
type ActivityInfo struct {
	Activity
	Participants []string
}

// ===== Activities =====
type ActivityRepository interface {
	ListActivities(ctx context.Context, f ActivityFilter) ([]ActivityInfo, error)

	// GetByName and Participants are single-activity read helpers. The HTTP
	// handlers do not use them: listing goes through ListActivities, which
	// loads participants for every activity in one query.
	GetByName(ctx context.Context, name string) (Activity, error)
	Participants(ctx context.Context, activityID int64) ([]Participant, error)

	SignUp(ctx context.Context, activityName, email string) error
	Unregister(ctx context.Context, activityName, email string) error
	Ping(ctx context.Context) error
}
