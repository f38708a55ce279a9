// models/team_member.go
package models

type TeamRole string

const (
	TeamRoleLeader TeamRole = "Leader"
	TeamRoleMember TeamRole = "Member"
)

const UnknownUsername = "Unknown User"

// TeamMemberView is a member id resolved against the users collection.
type TeamMemberView struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Role     TeamRole `json:"role"`
}

// TeamDetails is a team with its member list denormalised for display.
type TeamDetails struct {
	Team
	Members []TeamMemberView `json:"members"`
}
