// models/team.go
package models

import "time"

type Privacy string

const (
	PrivacyOpen       Privacy = "Open to Everyone"
	PrivacyInviteOnly Privacy = "Invite Only"
)

var ExperienceLevels = []string{"Beginner", "Intermediate", "Advanced"}

// TeamPreferences is stored inline on the team document.
type TeamPreferences struct {
	ExperienceLevel string  `json:"experienceLevel" bson:"experienceLevel"`
	Privacy         Privacy `json:"privacy" bson:"privacy"`
	Tags            string  `json:"tags" bson:"tags"`
	Location        string  `json:"location" bson:"location"`
	Leader          string  `json:"leader" bson:"leader"`
	ProfilePicture  string  `json:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
	CreatedBy       string  `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
}

// Team is the aggregate document kept in the "team" collection.
type Team struct {
	ID          string          `json:"id" bson:"_id"`
	Name        string          `json:"name" bson:"name"`
	Category    string          `json:"category" bson:"category"`
	Details     string          `json:"details" bson:"details"`
	Preferences TeamPreferences `json:"preferences" bson:"preferences"`
	Members     []string        `json:"members" bson:"members"`
	CreatedAt   time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt" bson:"updatedAt"`
}

func (t *Team) IsLeader(userID string) bool {
	return userID != "" && t.Preferences.Leader == userID
}

func (t *Team) HasMember(userID string) bool {
	for _, id := range t.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// IsInviteOnly reports whether joining requires a leader-approved request.
func (t *Team) IsInviteOnly() bool {
	return t.Preferences.Privacy == PrivacyInviteOnly
}
