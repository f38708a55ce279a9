// services/membership_service.go - Team membership and join-request workflow
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"teamhub/events"
	"teamhub/logger"
	"teamhub/models"
	"teamhub/utils"
	"time"

	"golang.org/x/sync/errgroup"
)

// usernameLookupLimit bounds concurrent username lookups per team.
const usernameLookupLimit = 8

type JoinOutcome string

const (
	JoinOutcomeJoined  JoinOutcome = "joined"
	JoinOutcomePending JoinOutcome = "pending"
)

// CreateTeamInput is the payload for a new team.
type CreateTeamInput struct {
	Name            string         `json:"name" validate:"required,min=1,max=100"`
	Category        string         `json:"category" validate:"required,max=60"`
	Details         string         `json:"details" validate:"required,max=1000"`
	ExperienceLevel string         `json:"experienceLevel" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Privacy         models.Privacy `json:"privacy" validate:"omitempty,oneof='Open to Everyone' 'Invite Only'"`
	Tags            string         `json:"tags" validate:"max=200"`
	Location        string         `json:"location" validate:"max=100"`
	ProfilePicture  string         `json:"profilePicture" validate:"omitempty,uri"`
}

// MembershipService sequences writes across the aggregate store and the
// relation store for every membership transition. Writes inside one call are
// strictly ordered and never rolled back; a partially applied sequence is
// recorded as a cleanup task for the Reconciler.
type MembershipService struct {
	teams     AggregateStore
	relations RelationStore
	tasks     TaskQueue
	events    events.Publisher
	log       *logger.Logger
}

func NewMembershipService(teams AggregateStore, relations RelationStore, tasks TaskQueue, pub events.Publisher, log *logger.Logger) *MembershipService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &MembershipService{
		teams:     teams,
		relations: relations,
		tasks:     tasks,
		events:    pub,
		log:       log,
	}
}

// ================== TEAM CREATION ==================

// CreateTeam creates a team led by actorID and makes the leader its first member.
func (s *MembershipService) CreateTeam(ctx context.Context, actorID string, in CreateTeamInput) (string, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Privacy == "" {
		in.Privacy = models.PrivacyOpen
	}
	if in.ExperienceLevel == "" {
		in.ExperienceLevel = models.ExperienceLevels[0]
	}
	log := s.log.With("user_id", actorID, "team_name", in.Name)

	exists, err := s.teams.TeamExists(ctx, in.Name)
	if err != nil {
		log.Error("team name check failed", "error", err)
		return "", err
	}
	if exists {
		return "", fmt.Errorf("team name is already taken: %w", ErrConflict)
	}

	prefs := models.TeamPreferences{
		ExperienceLevel: in.ExperienceLevel,
		Privacy:         in.Privacy,
		Tags:            in.Tags,
		Location:        in.Location,
		ProfilePicture:  in.ProfilePicture,
		CreatedBy:       actorID,
	}
	teamID, err := s.teams.CreateTeam(ctx, in.Name, in.Category, in.Details, prefs, actorID)
	if err != nil {
		log.Error("create team failed", "error", err)
		return "", err
	}

	if err := s.addMembership(ctx, teamID, actorID); err != nil {
		log.Error("leader membership failed", "team_id", teamID, "error", err)
		s.recordReconcile(ctx, teamID, actorID, err)
		return teamID, err
	}

	log.Info("team created", "team_id", teamID)
	s.publish(ctx, events.Event{Type: events.TeamCreated, TeamID: teamID, UserID: actorID, ActorID: actorID})
	return teamID, nil
}

// ================== JOINING ==================

// RequestToJoin joins an open team directly and files a request for an invite-only one.
func (s *MembershipService) RequestToJoin(ctx context.Context, actorID, teamID string) (JoinOutcome, *models.TeamRequest, error) {
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return "", nil, err
	}
	if team.IsInviteOnly() {
		req, err := s.SendJoinRequest(ctx, actorID, teamID)
		if err != nil {
			return "", nil, err
		}
		return JoinOutcomePending, req, nil
	}
	if err := s.DirectJoin(ctx, actorID, teamID); err != nil {
		return "", nil, err
	}
	return JoinOutcomeJoined, nil, nil
}

// DirectJoin adds actorID to an open team: relation row, user document, team document.
func (s *MembershipService) DirectJoin(ctx context.Context, actorID, teamID string) error {
	log := s.log.With("user_id", actorID, "team_id", teamID)

	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.IsInviteOnly() {
		return fmt.Errorf("team is invite only, send a join request instead: %w", ErrPreconditionFailed)
	}
	if team.HasMember(actorID) {
		return fmt.Errorf("already a member of this team: %w", ErrConflict)
	}

	if err := s.addMembership(ctx, teamID, actorID); err != nil {
		log.Error("direct join failed", "error", err)
		s.recordReconcile(ctx, teamID, actorID, err)
		return err
	}

	log.Info("user joined team")
	s.publish(ctx, events.Event{Type: events.MemberJoined, TeamID: teamID, UserID: actorID, ActorID: actorID})
	return nil
}

// SendJoinRequest files a pending request for an invite-only team.
func (s *MembershipService) SendJoinRequest(ctx context.Context, actorID, teamID string) (*models.TeamRequest, error) {
	log := s.log.With("user_id", actorID, "team_id", teamID)

	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.IsInviteOnly() {
		return nil, fmt.Errorf("team is open to everyone, join it directly: %w", ErrPreconditionFailed)
	}
	if team.HasMember(actorID) || team.IsLeader(actorID) {
		return nil, fmt.Errorf("already a member of this team: %w", ErrConflict)
	}

	req, err := s.relations.InsertJoinRequest(ctx, teamID, actorID)
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			log.Error("send join request failed", "error", err)
		}
		return nil, err
	}

	log.Info("join request sent", "request_id", req.RequestID)
	s.publish(ctx, events.Event{Type: events.RequestCreated, TeamID: teamID, UserID: actorID, ActorID: actorID, RequestID: req.RequestID})
	return req, nil
}

// ================== REQUEST RESOLUTION ==================

// AcceptRequest grants membership for a pending request. Only the team leader may accept.
// The relation row insert and the request deletion commit together; the two
// aggregate writes follow and are retried by the reconciler if they fail.
func (s *MembershipService) AcceptRequest(ctx context.Context, actorID, teamID, requestID string) error {
	log := s.log.With("actor_id", actorID, "team_id", teamID, "request_id", requestID)

	req, team, err := s.loadRequestForLeader(ctx, actorID, teamID, requestID)
	if err != nil {
		return err
	}
	log = log.With("user_id", req.UserID)

	if team.HasMember(req.UserID) {
		// Stale request: the user is already in. Clearing it is best-effort.
		if err := s.relations.DeleteJoinRequest(ctx, requestID); err != nil {
			log.Warn("stale join request not deleted, queued for cleanup", "error", err)
			s.recordTask(ctx, models.CleanupTask{
				Kind:      models.CleanupDeleteRequest,
				TeamID:    teamID,
				UserID:    req.UserID,
				RequestID: requestID,
				LastError: err.Error(),
			})
		}
		return nil
	}

	if err := s.relations.AcceptJoinRequest(ctx, requestID, teamID, req.UserID); err != nil {
		log.Error("accept join request failed", "error", err)
		return err
	}
	// The request is gone once the transaction commits, so a failed document
	// write is completed later rather than reconciled away.
	if err := s.teams.AddTeamIDToUser(ctx, req.UserID, teamID); err != nil {
		log.Error("mirror team into user failed", "error", err)
		s.recordCompletion(ctx, teamID, req.UserID, requestID, err)
		return err
	}
	if err := s.teams.AddMemberID(ctx, req.UserID, teamID); err != nil {
		log.Error("add member to team failed", "error", err)
		s.recordCompletion(ctx, teamID, req.UserID, requestID, err)
		return err
	}

	log.Info("join request accepted")
	s.publish(ctx, events.Event{Type: events.RequestAccepted, TeamID: teamID, UserID: req.UserID, ActorID: actorID, RequestID: requestID})
	return nil
}

// RejectRequest drops a pending request without touching membership.
func (s *MembershipService) RejectRequest(ctx context.Context, actorID, teamID, requestID string) error {
	log := s.log.With("actor_id", actorID, "team_id", teamID, "request_id", requestID)

	req, _, err := s.loadRequestForLeader(ctx, actorID, teamID, requestID)
	if err != nil {
		return err
	}
	if err := s.relations.DeleteJoinRequest(ctx, requestID); err != nil {
		log.Error("reject join request failed", "error", err)
		return err
	}

	log.Info("join request rejected", "user_id", req.UserID)
	s.publish(ctx, events.Event{Type: events.RequestRejected, TeamID: teamID, UserID: req.UserID, ActorID: actorID, RequestID: requestID})
	return nil
}

func (s *MembershipService) loadRequestForLeader(ctx context.Context, actorID, teamID, requestID string) (*models.TeamRequest, *models.Team, error) {
	req, err := s.relations.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.TeamID != teamID {
		return nil, nil, fmt.Errorf("join request %s for team %s: %w", requestID, teamID, ErrNotFound)
	}
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	if !team.IsLeader(actorID) {
		return nil, nil, fmt.Errorf("only the team leader can manage join requests: %w", ErrForbidden)
	}
	return req, team, nil
}

// ================== LEAVING ==================

// LeaveOrRemove takes userID out of the team. A user may remove themselves;
// removing anyone else requires the leader. The leader cannot leave.
// Writes: team document, user document, relation row. Each failure stops the
// sequence and earlier writes stay applied.
func (s *MembershipService) LeaveOrRemove(ctx context.Context, actorID, teamID, userID string) error {
	log := s.log.With("actor_id", actorID, "team_id", teamID, "user_id", userID)

	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if actorID != userID && !team.IsLeader(actorID) {
		return fmt.Errorf("only the team leader can remove members: %w", ErrForbidden)
	}
	if team.IsLeader(userID) {
		return fmt.Errorf("the team leader cannot leave the team: %w", ErrPreconditionFailed)
	}

	if err := s.teams.RemoveMemberID(ctx, userID, teamID); err != nil {
		if !errors.Is(err, ErrPreconditionFailed) {
			log.Error("remove member from team failed", "error", err)
		}
		return err
	}
	if err := s.teams.RemoveTeamIDFromUser(ctx, userID, teamID); err != nil {
		log.Error("remove team from user failed", "error", err)
		s.recordReconcile(ctx, teamID, userID, err)
		return err
	}
	if err := s.relations.DeleteMembershipRow(ctx, userID, teamID); err != nil {
		log.Error("delete user_teams row failed", "error", err)
		s.recordReconcile(ctx, teamID, userID, err)
		return err
	}

	log.Info("user left team")
	s.publish(ctx, events.Event{Type: events.MemberLeft, TeamID: teamID, UserID: userID, ActorID: actorID})
	return nil
}

// ================== READS ==================

// FetchTeamDetails resolves member ids to usernames and roles.
// A missing team is not an error: it returns nil, nil.
func (s *MembershipService) FetchTeamDetails(ctx context.Context, teamID string) (*models.TeamDetails, error) {
	team, err := s.teams.GetTeam(ctx, teamID)
	if errors.Is(err, ErrNotFound) {
		s.log.Warn("team not found", "team_id", teamID)
		return nil, nil
	}
	if err != nil {
		s.log.Error("fetch team details failed", "team_id", teamID, "error", err)
		return nil, err
	}

	members := make([]models.TeamMemberView, len(team.Members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(usernameLookupLimit)
	for i, memberID := range team.Members {
		i, memberID := i, memberID
		g.Go(func() error {
			username, err := s.teams.GetUsername(gctx, memberID)
			if err != nil {
				return err
			}
			if username == "" {
				username = models.UnknownUsername
			}
			role := models.TeamRoleMember
			if team.IsLeader(memberID) {
				role = models.TeamRoleLeader
			}
			members[i] = models.TeamMemberView{ID: memberID, Username: username, Role: role}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("resolve member usernames failed", "team_id", teamID, "error", err)
		return nil, err
	}

	return &models.TeamDetails{Team: *team, Members: members}, nil
}

func (s *MembershipService) FetchTeamsByName(ctx context.Context, partial string) ([]models.Team, error) {
	teams, err := s.teams.FetchTeamsByName(ctx, partial)
	if err != nil {
		s.log.Error("team search failed", "query", partial, "error", err)
		return nil, err
	}
	return teams, nil
}

// FetchUserTeams lists the user's teams from the relation store, resolved
// against the aggregate store. Rows pointing at missing teams are skipped.
func (s *MembershipService) FetchUserTeams(ctx context.Context, userID string) ([]models.Team, error) {
	teamIDs, err := s.relations.ListMembershipRowsForUser(ctx, userID)
	if err != nil {
		s.log.Error("list user teams failed", "user_id", userID, "error", err)
		return nil, err
	}
	return s.resolveTeams(ctx, userID, teamIDs)
}

// FetchUserTeamsFromAggregate lists the user's teams from the user document.
func (s *MembershipService) FetchUserTeamsFromAggregate(ctx context.Context, userID string) ([]models.Team, error) {
	user, err := s.teams.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []models.Team{}, nil
	}
	if err != nil {
		s.log.Error("get user failed", "user_id", userID, "error", err)
		return nil, err
	}
	return s.resolveTeams(ctx, userID, user.Teams)
}

func (s *MembershipService) resolveTeams(ctx context.Context, userID string, teamIDs []string) ([]models.Team, error) {
	teams := make([]models.Team, 0, len(teamIDs))
	for _, id := range teamIDs {
		team, err := s.teams.GetTeam(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("membership points at missing team", "user_id", userID, "team_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, *team)
	}
	return teams, nil
}

// FetchPendingTeamRequests lists pending requests with usernames. Leader only.
func (s *MembershipService) FetchPendingTeamRequests(ctx context.Context, actorID, teamID string) ([]models.PendingRequestView, error) {
	if err := s.requireLeader(ctx, actorID, teamID); err != nil {
		return nil, err
	}
	requests, err := s.relations.ListPendingRequests(ctx, teamID)
	if err != nil {
		s.log.Error("list join requests failed", "team_id", teamID, "error", err)
		return nil, err
	}

	views := make([]models.PendingRequestView, 0, len(requests))
	for _, r := range requests {
		username, err := s.teams.GetUsername(ctx, r.UserID)
		if err != nil {
			return nil, err
		}
		if username == "" {
			username = models.UnknownUsername
		}
		views = append(views, models.PendingRequestView{
			RequestID: r.RequestID,
			UserID:    r.UserID,
			Username:  username,
			CreatedAt: r.CreatedAt,
		})
	}
	return views, nil
}

func (s *MembershipService) CountPendingRequests(ctx context.Context, teamID string) (int64, error) {
	return s.relations.CountPendingRequests(ctx, teamID)
}

// PendingBadge is the leader's request badge: "" when there is nothing to show.
func (s *MembershipService) PendingBadge(ctx context.Context, actorID string, team *models.Team) (string, error) {
	if !team.IsLeader(actorID) {
		return "", nil
	}
	count, err := s.relations.CountPendingRequests(ctx, team.ID)
	if err != nil {
		return "", err
	}
	return FormatBadge(count), nil
}

// RequestCount returns the pending count and the actor's badge for it.
func (s *MembershipService) RequestCount(ctx context.Context, actorID, teamID string) (int64, string, error) {
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return 0, "", err
	}
	count, err := s.relations.CountPendingRequests(ctx, teamID)
	if err != nil {
		s.log.Error("count join requests failed", "team_id", teamID, "error", err)
		return 0, "", err
	}
	if !team.IsLeader(actorID) {
		return count, "", nil
	}
	return count, FormatBadge(count), nil
}

// FormatBadge caps the displayed count at "9+".
func FormatBadge(count int64) string {
	switch {
	case count <= 0:
		return ""
	case count > 9:
		return "9+"
	default:
		return strconv.FormatInt(count, 10)
	}
}

func (s *MembershipService) requireLeader(ctx context.Context, actorID, teamID string) error {
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.IsLeader(actorID) {
		return fmt.Errorf("only the team leader can view join requests: %w", ErrForbidden)
	}
	return nil
}

// ================== USERS ==================

func (s *MembershipService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.teams.GetUser(ctx, userID)
}

func (s *MembershipService) UpdateUser(ctx context.Context, userID string, update models.UserProfileUpdate) (*models.User, error) {
	if err := utils.ValidateStruct(update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.teams.UpsertUser(ctx, userID, update); err != nil {
		s.log.Error("update user failed", "user_id", userID, "error", err)
		return nil, err
	}
	return s.teams.GetUser(ctx, userID)
}

func (s *MembershipService) SearchUsers(ctx context.Context, prefix string) ([]models.User, error) {
	return s.teams.SearchUsersByUsername(ctx, prefix)
}

func (s *MembershipService) ListInterests(ctx context.Context) ([]string, error) {
	return s.teams.ListInterests(ctx)
}

// ================== HELPERS ==================

// addMembership applies the three membership writes in order.
func (s *MembershipService) addMembership(ctx context.Context, teamID, userID string) error {
	if err := s.relations.InsertMembershipRow(ctx, userID, teamID); err != nil {
		if !errors.Is(err, ErrConflict) {
			return err
		}
		s.log.Warn("user_teams row already present", "team_id", teamID, "user_id", userID)
	}
	if err := s.teams.AddTeamIDToUser(ctx, userID, teamID); err != nil {
		return err
	}
	return s.teams.AddMemberID(ctx, userID, teamID)
}

func (s *MembershipService) recordReconcile(ctx context.Context, teamID, userID string, cause error) {
	s.recordTask(ctx, models.CleanupTask{
		Kind:      models.CleanupReconcileMembership,
		TeamID:    teamID,
		UserID:    userID,
		LastError: cause.Error(),
	})
}

func (s *MembershipService) recordCompletion(ctx context.Context, teamID, userID, requestID string, cause error) {
	s.recordTask(ctx, models.CleanupTask{
		Kind:      models.CleanupCompleteMembership,
		TeamID:    teamID,
		UserID:    userID,
		RequestID: requestID,
		LastError: cause.Error(),
	})
}

func (s *MembershipService) recordTask(ctx context.Context, task models.CleanupTask) {
	if s.tasks == nil {
		return
	}
	task.CreatedAt = time.Now().UTC()
	if err := s.tasks.Push(context.WithoutCancel(ctx), task); err != nil {
		s.log.Error("record cleanup task failed", "kind", task.Kind, "team_id", task.TeamID, "user_id", task.UserID, "error", err)
	}
}

func (s *MembershipService) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", "type", ev.Type, "team_id", ev.TeamID, "error", err)
	}
}
