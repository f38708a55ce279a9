// handlers/users.go - User profile HTTP Handlers
package handlers

import (
	"teamhub/middleware"
	"teamhub/models"
	"teamhub/utils"

	"github.com/gofiber/fiber/v2"
)

// GetCurrentUser returns the caller's profile
// GET /api/users/me
func GetCurrentUser(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	user, err := membershipService.GetUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user": user})
}

// UpdateCurrentUser merges profile fields into the caller's user document
// PUT /api/users/me
func UpdateCurrentUser(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	var req models.UserProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	user, err := membershipService.UpdateUser(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"message": "Profile updated",
		"user":    user,
	})
}

// GetCurrentUserTeams lists the teams recorded on the caller's user document
// GET /api/users/me/teams
func GetCurrentUserTeams(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	teams, err := membershipService.FetchUserTeamsFromAggregate(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"teams": teams,
		"count": len(teams),
	})
}

// SearchUsers matches users by username prefix
// GET /api/users/search?q=
func SearchUsers(c *fiber.Ctx) error {
	users, err := membershipService.SearchUsers(c.UserContext(), utils.Query(c, "q"))
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"users": users,
		"count": len(users),
	})
}

// GetUserProfile returns another user's profile
// GET /api/users/:id
func GetUserProfile(c *fiber.Ctx) error {
	user, err := membershipService.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user": user})
}

// GetInterests lists the selectable interests
// GET /api/interests
func GetInterests(c *fiber.Ctx) error {
	interests, err := membershipService.ListInterests(c.UserContext())
	if err != nil {
		return err
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"interests": interests})
}
