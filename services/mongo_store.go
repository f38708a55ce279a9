// services/mongo_store.go - MongoDB-backed aggregate store
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"teamhub/models"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	teamCollection      = "team"
	userCollection      = "users"
	interestsCollection = "interests"
)

type MongoStore struct {
	teams     *mongo.Collection
	users     *mongo.Collection
	interests *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		teams:     db.Collection(teamCollection),
		users:     db.Collection(userCollection),
		interests: db.Collection(interestsCollection),
	}
}

// EnsureIndexes creates the unique team-name index and the lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.teams.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_team_name"),
	}); err != nil {
		return fmt.Errorf("create team name index: %w", err)
	}
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetName("idx_users_username")},
		{Keys: bson.D{{Key: "teams", Value: 1}}, Options: options.Index().SetName("idx_users_teams")},
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// ================== TEAMS ==================

func (s *MongoStore) TeamExists(ctx context.Context, name string) (bool, error) {
	n, err := s.teams.CountDocuments(ctx, bson.M{"name": name}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check team name: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) CreateTeam(ctx context.Context, name, category, details string, prefs models.TeamPreferences, leaderID string) (string, error) {
	prefs.Leader = leaderID
	now := time.Now().UTC()
	team := models.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		Details:     details,
		Preferences: prefs,
		Members:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.teams.InsertOne(ctx, team); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("team name %q already taken: %w", name, ErrConflict)
		}
		return "", fmt.Errorf("create team: %w", err)
	}
	return team.ID, nil
}

func (s *MongoStore) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	err := s.teams.FindOne(ctx, bson.M{"_id": teamID}).Decode(&team)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", teamID, err)
	}
	return &team, nil
}

func (s *MongoStore) ListAllTeams(ctx context.Context) ([]models.Team, error) {
	cur, err := s.teams.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	teams := []models.Team{}
	if err := cur.All(ctx, &teams); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	return teams, nil
}

// FetchTeamsByName scans the whole collection and filters client-side.
// There is no text index on team names, so this only suits small collections.
func (s *MongoStore) FetchTeamsByName(ctx context.Context, partial string) ([]models.Team, error) {
	if partial == "" {
		return []models.Team{}, nil
	}
	all, err := s.ListAllTeams(ctx)
	if err != nil {
		return nil, err
	}
	return filterTeamsByName(all, partial), nil
}

func (s *MongoStore) AddMemberID(ctx context.Context, userID, teamID string) error {
	res, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": teamID},
		bson.M{
			"$addToSet": bson.M{"members": userID},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("add member %s to team %s: %w", userID, teamID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) RemoveMemberID(ctx context.Context, userID, teamID string) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.HasMember(userID) {
		return fmt.Errorf("user %s is not in team %s: %w", userID, teamID, ErrPreconditionFailed)
	}

	if _, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": teamID},
		bson.M{
			"$pull": bson.M{"members": userID},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		}); err != nil {
		return fmt.Errorf("remove member %s from team %s: %w", userID, teamID, err)
	}
	return nil
}

// ================== USERS ==================

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, userID string, update models.UserProfileUpdate) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.DateOfBirth != nil {
		set["dateOfBirth"] = *update.DateOfBirth
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.ProfilePicture != nil {
		set["profilePicture"] = *update.ProfilePicture
	}
	if update.Interests != nil {
		set["interests"] = update.Interests
	}

	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

// GetUsername returns "" for an unknown user.
func (s *MongoStore) GetUsername(ctx context.Context, userID string) (string, error) {
	var doc struct {
		Username string `bson:"username"`
	}
	err := s.users.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"username": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get username %s: %w", userID, err)
	}
	return doc.Username, nil
}

func (s *MongoStore) SearchUsersByUsername(ctx context.Context, prefix string) ([]models.User, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []models.User{}, nil
	}

	filter := bson.M{"username": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix), "$options": "i"}}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(usernameSearchLimit)

	cur, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *MongoStore) ListUserIDsWithTeam(ctx context.Context, teamID string) ([]string, error) {
	cur, err := s.users.Find(ctx, bson.M{"teams": teamID}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list users of team %s: %w", teamID, err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode user ids: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// AddTeamIDToUser creates the user document when it does not exist yet.
func (s *MongoStore) AddTeamIDToUser(ctx context.Context, userID, teamID string) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"teams": teamID},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("add team %s to user %s: %w", teamID, userID, err)
	}
	return nil
}

func (s *MongoStore) RemoveTeamIDFromUser(ctx context.Context, userID, teamID string) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$pull": bson.M{"teams": teamID},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("remove team %s from user %s: %w", teamID, userID, err)
	}
	return nil
}

func (s *MongoStore) ListInterests(ctx context.Context) ([]string, error) {
	cur, err := s.interests.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}
	var docs []models.Interest
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names, nil
}
