// services/reconciler.go - Background repair of divergence between the two stores
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"teamhub/logger"
	"teamhub/models"
	"time"

	"github.com/getsentry/sentry-go"
)

// MaxCleanupAttempts is how many times a cleanup task is tried before it is dropped.
const MaxCleanupAttempts = 5

// DefaultSweepGrace is how old a relation row or user document must be before
// a sweep may remove a membership the team document does not list. Younger
// entries may belong to a join that has not reached the team document yet.
const DefaultSweepGrace = 2 * time.Minute

// SweepReport counts the repairs made by one Sweep.
type SweepReport struct {
	Teams           int `json:"teams"`
	RowsAdded       int `json:"rows_added"`
	RowsRemoved     int `json:"rows_removed"`
	UserDocsAdded   int `json:"user_docs_added"`
	UserDocsRemoved int `json:"user_docs_removed"`
	LeadersRelisted int `json:"leaders_relisted"`
	SkippedRecent   int `json:"skipped_recent"`
}

func (r SweepReport) Repairs() int {
	return r.RowsAdded + r.RowsRemoved + r.UserDocsAdded + r.UserDocsRemoved + r.LeadersRelisted
}

// DrainReport counts the outcome of one DrainTasks pass.
type DrainReport struct {
	Applied  int `json:"applied"`
	Requeued int `json:"requeued"`
	Dropped  int `json:"dropped"`
}

// Reconciler converges the relation store and the user documents onto the
// team documents, which are authoritative for membership.
type Reconciler struct {
	teams     AggregateStore
	relations RelationStore
	tasks     TaskQueue
	interval  time.Duration
	grace     time.Duration
	now       func() time.Time
	log       *logger.Logger

	mu     sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	active bool
}

func NewReconciler(teams AggregateStore, relations RelationStore, tasks TaskQueue, interval time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		teams:     teams,
		relations: relations,
		tasks:     tasks,
		interval:  interval,
		grace:     DefaultSweepGrace,
		now:       time.Now,
		log:       log,
	}
}

// SetGracePeriod overrides DefaultSweepGrace. Zero removes stray entries immediately.
func (r *Reconciler) SetGracePeriod(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.grace = d
}

// Start runs drain and sweep every interval until Stop or ctx is done.
// A zero interval disables the loop.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active || r.interval <= 0 {
		return
	}
	r.active = true
	r.stop = make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.log.Info("reconciler started", "interval", r.interval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	close(r.stop)
	r.mu.Unlock()

	r.wg.Wait()
	r.log.Info("reconciler stopped")
}

// RunOnce drains recorded tasks first, then sweeps every team.
func (r *Reconciler) RunOnce(ctx context.Context) (DrainReport, SweepReport, error) {
	drained, err := r.DrainTasks(ctx)
	if err != nil {
		r.log.Error("drain cleanup tasks failed", "error", err)
		sentry.CaptureException(err)
		return drained, SweepReport{}, err
	}
	swept, err := r.Sweep(ctx)
	if err != nil {
		r.log.Error("sweep failed", "error", err)
		sentry.CaptureException(err)
		return drained, swept, err
	}
	if drained.Applied+drained.Dropped > 0 || swept.Repairs() > 0 {
		r.log.Info("reconcile pass finished",
			"tasks_applied", drained.Applied,
			"tasks_requeued", drained.Requeued,
			"tasks_dropped", drained.Dropped,
			"repairs", swept.Repairs(),
		)
	}
	return drained, swept, nil
}

// ================== SWEEP ==================

// Sweep walks every team and repairs its relation rows and user documents.
// A failure on one team is logged and the sweep moves on.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	teams, err := r.teams.ListAllTeams(ctx)
	if err != nil {
		return report, fmt.Errorf("list teams: %w", err)
	}

	for i := range teams {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.sweepTeam(ctx, &teams[i], &report); err != nil {
			r.log.Warn("sweep team failed", "team_id", teams[i].ID, "error", err)
			continue
		}
		report.Teams++
	}
	return report, nil
}

func (r *Reconciler) sweepTeam(ctx context.Context, team *models.Team, report *SweepReport) error {
	leader := team.Preferences.Leader
	if leader != "" && !team.HasMember(leader) {
		if err := r.teams.AddMemberID(ctx, leader, team.ID); err != nil {
			return fmt.Errorf("relist leader: %w", err)
		}
		team.Members = append(team.Members, leader)
		report.LeadersRelisted++
	}

	want := make(map[string]bool, len(team.Members))
	for _, id := range team.Members {
		want[id] = true
	}

	cutoff := r.now().Add(-r.grace)

	rows, err := r.relations.ListMembershipRowsForTeam(ctx, team.ID)
	if err != nil {
		return err
	}
	haveRow := make(map[string]bool, len(rows))
	for _, row := range rows {
		haveRow[row.UserID] = true
		if want[row.UserID] {
			continue
		}
		if row.CreatedAt.After(cutoff) {
			report.SkippedRecent++
			continue
		}
		if err := r.relations.DeleteMembershipRow(ctx, row.UserID, team.ID); err != nil {
			return err
		}
		r.log.Debug("removed stray user_teams row", "team_id", team.ID, "user_id", row.UserID)
		report.RowsRemoved++
	}

	docUsers, err := r.teams.ListUserIDsWithTeam(ctx, team.ID)
	if err != nil {
		return err
	}
	haveDoc := make(map[string]bool, len(docUsers))
	for _, userID := range docUsers {
		haveDoc[userID] = true
		if want[userID] {
			continue
		}
		recent, err := r.userTouchedSince(ctx, userID, cutoff)
		if err != nil {
			return err
		}
		if recent {
			report.SkippedRecent++
			continue
		}
		if err := r.teams.RemoveTeamIDFromUser(ctx, userID, team.ID); err != nil {
			return err
		}
		r.log.Debug("removed stray team from user", "team_id", team.ID, "user_id", userID)
		report.UserDocsRemoved++
	}

	for _, userID := range team.Members {
		if !haveRow[userID] {
			if err := r.relations.InsertMembershipRow(ctx, userID, team.ID); err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
			report.RowsAdded++
		}
		if !haveDoc[userID] {
			if err := r.teams.AddTeamIDToUser(ctx, userID, team.ID); err != nil {
				return err
			}
			report.UserDocsAdded++
		}
	}
	return nil
}

func (r *Reconciler) userTouchedSince(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	user, err := r.teams.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.UpdatedAt.After(cutoff), nil
}

// ReconcilePair makes one (team, user) pair agree with the team document.
// A deleted team counts as "not a member".
func (r *Reconciler) ReconcilePair(ctx context.Context, teamID, userID string) error {
	member := false
	team, err := r.teams.GetTeam(ctx, teamID)
	switch {
	case err == nil:
		member = team.HasMember(userID) || team.IsLeader(userID)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if member {
		if err := r.relations.InsertMembershipRow(ctx, userID, teamID); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
		if !team.HasMember(userID) {
			if err := r.teams.AddMemberID(ctx, userID, teamID); err != nil {
				return err
			}
		}
		return r.teams.AddTeamIDToUser(ctx, userID, teamID)
	}

	if err := r.relations.DeleteMembershipRow(ctx, userID, teamID); err != nil {
		return err
	}
	return r.teams.RemoveTeamIDFromUser(ctx, userID, teamID)
}

// CompleteMembership finishes an accepted join request: the relation row,
// the user document and the team document all gain the pair. If the team has
// since been deleted the pair is reconciled away instead.
func (r *Reconciler) CompleteMembership(ctx context.Context, teamID, userID string) error {
	team, err := r.teams.GetTeam(ctx, teamID)
	if errors.Is(err, ErrNotFound) {
		return r.ReconcilePair(ctx, teamID, userID)
	}
	if err != nil {
		return err
	}

	if err := r.relations.InsertMembershipRow(ctx, userID, teamID); err != nil && !errors.Is(err, ErrConflict) {
		return err
	}
	if err := r.teams.AddTeamIDToUser(ctx, userID, teamID); err != nil {
		return err
	}
	if team.HasMember(userID) {
		return nil
	}
	return r.teams.AddMemberID(ctx, userID, teamID)
}

// ================== CLEANUP TASKS ==================

// DrainTasks applies the tasks queued when the pass started. Failed tasks go
// back on the queue until MaxCleanupAttempts is reached.
func (r *Reconciler) DrainTasks(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	if r.tasks == nil {
		return report, nil
	}

	pending, err := r.tasks.Len(ctx)
	if err != nil {
		return report, err
	}

	for i := int64(0); i < pending; i++ {
		task, err := r.tasks.Pop(ctx)
		if err != nil {
			return report, err
		}
		if task == nil {
			break
		}

		log := r.log.With("kind", task.Kind, "team_id", task.TeamID, "user_id", task.UserID, "request_id", task.RequestID)
		applyErr := r.applyTask(ctx, task)
		if applyErr == nil {
			log.Info("cleanup task applied", "attempts", task.Attempts+1)
			report.Applied++
			continue
		}

		task.Attempts++
		task.LastError = applyErr.Error()
		if task.Attempts >= MaxCleanupAttempts {
			log.Error("cleanup task dropped", "attempts", task.Attempts, "error", applyErr)
			sentry.CaptureException(fmt.Errorf("cleanup task %s dropped after %d attempts: %w", task.Kind, task.Attempts, applyErr))
			report.Dropped++
			continue
		}
		if err := r.tasks.Push(ctx, *task); err != nil {
			return report, err
		}
		log.Warn("cleanup task failed, requeued", "attempts", task.Attempts, "error", applyErr)
		report.Requeued++
	}
	return report, nil
}

func (r *Reconciler) applyTask(ctx context.Context, task *models.CleanupTask) error {
	switch task.Kind {
	case models.CleanupDeleteRequest:
		return r.relations.DeleteJoinRequest(ctx, task.RequestID)
	case models.CleanupReconcileMembership:
		return r.ReconcilePair(ctx, task.TeamID, task.UserID)
	case models.CleanupCompleteMembership:
		return r.CompleteMembership(ctx, task.TeamID, task.UserID)
	default:
		return fmt.Errorf("unknown cleanup task kind %q", task.Kind)
	}
}
