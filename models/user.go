// models/user.go
package models

import (
	"time"
)

type User struct {
	ID             string    `json:"id" bson:"_id"`
	Username       string    `json:"username" bson:"username"`
	DateOfBirth    string    `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Description    string    `json:"description,omitempty" bson:"description,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
	Teams          []string  `json:"teams" bson:"teams"`
	Interests      []string  `json:"interests" bson:"interests"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserProfileUpdate carries the mergeable profile fields. Nil fields are left untouched.
type UserProfileUpdate struct {
	Username       *string  `json:"username" validate:"omitempty,min=2,max=40"`
	DateOfBirth    *string  `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Description    *string  `json:"description" validate:"omitempty,max=500"`
	ProfilePicture *string  `json:"profilePicture" validate:"omitempty,uri"`
	Interests      []string `json:"interests" validate:"omitempty,max=20,dive,min=1,max=40"`
}

type Interest struct {
	Name string `json:"name" bson:"name"`
}
