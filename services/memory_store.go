// services/memory_store.go - In-process aggregate store
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"teamhub/models"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps team and user documents in maps. It follows the same
// contract as MongoStore, including name uniqueness, and backs local runs
// with AGGREGATE_BACKEND=memory.
type MemoryStore struct {
	mu        sync.RWMutex
	teams     map[string]*models.Team
	teamNames map[string]string
	users     map[string]*models.User
	interests []string
}

func NewMemoryStore(interests ...string) *MemoryStore {
	return &MemoryStore{
		teams:     make(map[string]*models.Team),
		teamNames: make(map[string]string),
		users:     make(map[string]*models.User),
		interests: interests,
	}
}

func (s *MemoryStore) TeamExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.teamNames[name]
	return ok, nil
}

func (s *MemoryStore) CreateTeam(_ context.Context, name, category, details string, prefs models.TeamPreferences, leaderID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teamNames[name]; ok {
		return "", fmt.Errorf("team name %q already taken: %w", name, ErrConflict)
	}

	prefs.Leader = leaderID
	now := time.Now().UTC()
	team := &models.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		Details:     details,
		Preferences: prefs,
		Members:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.teams[team.ID] = team
	s.teamNames[name] = team.ID
	return team.ID, nil
}

func (s *MemoryStore) GetTeam(_ context.Context, teamID string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	return copyTeam(team), nil
}

func (s *MemoryStore) ListAllTeams(_ context.Context) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Team, 0, len(s.teams))
	for _, team := range s.teams {
		out = append(out, *copyTeam(team))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FetchTeamsByName(ctx context.Context, partial string) ([]models.Team, error) {
	if partial == "" {
		return []models.Team{}, nil
	}
	all, err := s.ListAllTeams(ctx)
	if err != nil {
		return nil, err
	}
	return filterTeamsByName(all, partial), nil
}

func (s *MemoryStore) AddMemberID(_ context.Context, userID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[teamID]
	if !ok {
		return fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	if !team.HasMember(userID) {
		team.Members = append(team.Members, userID)
	}
	team.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RemoveMemberID(_ context.Context, userID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[teamID]
	if !ok {
		return fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	if !team.HasMember(userID) {
		return fmt.Errorf("user %s is not in team %s: %w", userID, teamID, ErrPreconditionFailed)
	}
	team.Members = removeString(team.Members, userID)
	team.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, userID string, update models.UserProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.userLocked(userID)
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.DateOfBirth != nil {
		user.DateOfBirth = *update.DateOfBirth
	}
	if update.Description != nil {
		user.Description = *update.Description
	}
	if update.ProfilePicture != nil {
		user.ProfilePicture = *update.ProfilePicture
	}
	if update.Interests != nil {
		user.Interests = append([]string(nil), update.Interests...)
	}
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetUsername(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		return user.Username, nil
	}
	return "", nil
}

func (s *MemoryStore) SearchUsersByUsername(_ context.Context, prefix string) ([]models.User, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []models.User{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.User{}
	for _, user := range s.users {
		if strings.HasPrefix(strings.ToLower(user.Username), prefix) {
			out = append(out, *copyUser(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > usernameSearchLimit {
		out = out[:usernameSearchLimit]
	}
	return out, nil
}

func (s *MemoryStore) ListUserIDsWithTeam(_ context.Context, teamID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, user := range s.users {
		for _, t := range user.Teams {
			if t == teamID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) AddTeamIDToUser(_ context.Context, userID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.userLocked(userID)
	for _, t := range user.Teams {
		if t == teamID {
			return nil
		}
	}
	user.Teams = append(user.Teams, teamID)
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RemoveTeamIDFromUser(_ context.Context, userID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.Teams = removeString(user.Teams, teamID)
		user.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) ListInterests(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.interests...), nil
}

// userLocked returns the user document, creating an empty one. Caller holds mu.
func (s *MemoryStore) userLocked(userID string) *models.User {
	user, ok := s.users[userID]
	if !ok {
		user = &models.User{ID: userID, Teams: []string{}, Interests: []string{}}
		s.users[userID] = user
	}
	return user
}

func copyTeam(t *models.Team) *models.Team {
	c := *t
	c.Members = append([]string{}, t.Members...)
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.Teams = append([]string{}, u.Teams...)
	c.Interests = append([]string{}, u.Interests...)
	return &c
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// filterTeamsByName does a case-insensitive substring match on team names.
func filterTeamsByName(teams []models.Team, partial string) []models.Team {
	needle := strings.ToLower(partial)
	out := []models.Team{}
	for _, team := range teams {
		if strings.Contains(strings.ToLower(team.Name), needle) {
			out = append(out, team)
		}
	}
	return out
}
