// handlers/routes.go - API route table
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers the team portal API. auth guards every /api route.
func SetupRoutes(app *fiber.App, auth fiber.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	api := app.Group("/api")

	// Team Portal routes
	teamGroup := api.Group("/teams")
	teamGroup.Use(auth)
	teamGroup.Post("/", CreateTeam)
	teamGroup.Get("/", GetUserTeams)
	teamGroup.Get("/search", SearchTeams)
	teamGroup.Get("/:id", GetTeam)
	teamGroup.Post("/:id/join", JoinTeam)
	teamGroup.Post("/:id/requests", SendJoinRequest)
	teamGroup.Get("/:id/requests", GetTeamRequests)
	teamGroup.Get("/:id/requests/count", GetTeamRequestCount)
	teamGroup.Post("/:id/requests/:requestId/accept", AcceptRequest)
	teamGroup.Post("/:id/requests/:requestId/reject", RejectRequest)
	teamGroup.Post("/:id/leave", LeaveTeam)
	teamGroup.Delete("/:id/members/:memberId", RemoveMember)

	// User routes
	userGroup := api.Group("/users")
	userGroup.Use(auth)
	userGroup.Get("/me", GetCurrentUser)
	userGroup.Put("/me", UpdateCurrentUser)
	userGroup.Get("/me/teams", GetCurrentUserTeams)
	userGroup.Get("/search", SearchUsers)
	userGroup.Get("/:id", GetUserProfile)

	api.Get("/interests", auth, GetInterests)
}
