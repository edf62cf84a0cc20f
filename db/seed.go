package db

import "mergington/models"

func ptr[T any](v T) *T { return &v }

// SeedActivities returns the activities inserted into an empty database.
func SeedActivities() []models.Activity {
	return []models.Activity{
		{
			Name:            "Chess Club",
			Description:     ptr("Learn strategies and compete in chess tournaments"),
			Schedule:        ptr("Fridays, 3:30 PM - 5:00 PM"),
			MaxParticipants: ptr(12),
			Tags:            "games,strategy,competition",
		},
		{
			Name:            "Programming Class",
			Description:     ptr("Learn programming fundamentals and build software projects"),
			Schedule:        ptr("Tuesdays and Thursdays, 3:30 PM - 4:30 PM"),
			MaxParticipants: ptr(20),
			Tags:            "technology,coding",
		},
		{
			Name:            "Gym Class",
			Description:     ptr("Physical education and sports activities"),
			Schedule:        ptr("Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM"),
			MaxParticipants: ptr(30),
			Tags:            "sports,fitness",
		},
		{
			Name:            "GitHub Skills",
			Description:     ptr("Learn practical coding and collaboration skills with GitHub"),
			Schedule:        ptr("Wednesdays, 4:00 PM - 5:30 PM"),
			MaxParticipants: ptr(25),
			Tags:            "technology,coding,collaboration",
		},
	}
}
