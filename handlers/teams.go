// handlers/teams.go - Team Portal HTTP Handlers
package handlers

import (
	"teamhub/middleware"
	"teamhub/models"
	"teamhub/services"
	"teamhub/utils"

	"github.com/gofiber/fiber/v2"
)

var membershipService *services.MembershipService

// InitTeamHandlers wires the handlers to the membership workflow.
func InitTeamHandlers(svc *services.MembershipService) {
	if svc == nil {
		panic("membership service not initialized before InitTeamHandlers")
	}
	membershipService = svc
}

// ================== TEAM ENDPOINTS ==================

// CreateTeam creates a new team led by the caller
// POST /api/teams
func CreateTeam(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	var req services.CreateTeamInput
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	teamID, err := membershipService.CreateTeam(c.UserContext(), userID, req)
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusCreated, fiber.Map{
		"message": "Team created successfully",
		"team_id": teamID,
	})
}

// GetUserTeams lists the caller's teams
// GET /api/teams
func GetUserTeams(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	teams, err := membershipService.FetchUserTeams(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"teams": teams,
		"count": len(teams),
	})
}

// SearchTeams matches teams by partial name
// GET /api/teams/search?q=
func SearchTeams(c *fiber.Ctx) error {
	teams, err := membershipService.FetchTeamsByName(c.UserContext(), utils.Query(c, "q"))
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"teams": teams,
		"count": len(teams),
	})
}

// GetTeam returns a team with resolved members and the caller's view of it
// GET /api/teams/:id
func GetTeam(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	details, err := membershipService.FetchTeamDetails(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if details == nil {
		return utils.JSONError(c, fiber.StatusNotFound, "Team not found")
	}

	badge, err := membershipService.PendingBadge(c.UserContext(), userID, &details.Team)
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"team":      details,
		"is_leader": details.IsLeader(userID),
		"is_member": details.HasMember(userID),
		"badge":     badge,
	})
}

// ================== JOINING ==================

// JoinTeam joins an open team or files a request for an invite-only one
// POST /api/teams/:id/join
func JoinTeam(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	outcome, req, err := membershipService.RequestToJoin(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}

	if outcome == services.JoinOutcomePending {
		return utils.JSONSuccess(c, fiber.StatusAccepted, fiber.Map{
			"status":  outcome,
			"message": "Join request sent",
			"request": req,
		})
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"status":  outcome,
		"message": "Successfully joined team",
	})
}

// SendJoinRequest files a join request for an invite-only team
// POST /api/teams/:id/requests
func SendJoinRequest(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	req, err := membershipService.SendJoinRequest(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusCreated, fiber.Map{
		"message": "Join request sent",
		"request": req,
	})
}

// ================== JOIN REQUESTS (LEADER) ==================

// GetTeamRequests lists pending join requests
// GET /api/teams/:id/requests
func GetTeamRequests(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	requests, err := membershipService.FetchPendingTeamRequests(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}
	if requests == nil {
		requests = []models.PendingRequestView{}
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetTeamRequestCount returns the pending count and badge
// GET /api/teams/:id/requests/count
func GetTeamRequestCount(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	count, badge, err := membershipService.RequestCount(c.UserContext(), userID, c.Params("id"))
	if err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"count": count,
		"badge": badge,
	})
}

// AcceptRequest grants membership for a pending request
// POST /api/teams/:id/requests/:requestId/accept
func AcceptRequest(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	if err := membershipService.AcceptRequest(c.UserContext(), userID, c.Params("id"), c.Params("requestId")); err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"message": "Join request accepted",
	})
}

// RejectRequest drops a pending request
// POST /api/teams/:id/requests/:requestId/reject
func RejectRequest(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	if err := membershipService.RejectRequest(c.UserContext(), userID, c.Params("id"), c.Params("requestId")); err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"message": "Join request rejected",
	})
}

// ================== LEAVING ==================

// LeaveTeam removes the caller from a team
// POST /api/teams/:id/leave
func LeaveTeam(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	if err := membershipService.LeaveOrRemove(c.UserContext(), userID, c.Params("id"), userID); err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"message": "Successfully left team",
	})
}

// RemoveMember removes another member (leader only)
// DELETE /api/teams/:id/members/:memberId
func RemoveMember(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	if err := membershipService.LeaveOrRemove(c.UserContext(), userID, c.Params("id"), c.Params("memberId")); err != nil {
		return err
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"message": "Member removed successfully",
	})
}
