// utils/http.go - Response envelope helpers for Fiber handlers
package utils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// JSONError sends {"success": false, "error": message}.
func JSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// JSONSuccess sends {"success": true, ...}. A fiber.Map is merged into the
// envelope; anything else goes under "data".
func JSONSuccess(c *fiber.Ctx, status int, data interface{}) error {
	response := fiber.Map{
		"success": true,
	}

	if dataMap, ok := data.(fiber.Map); ok {
		for k, v := range dataMap {
			response[k] = v
		}
	} else if data != nil {
		response["data"] = data
	}

	return c.Status(status).JSON(response)
}

// Query returns a trimmed query parameter or the default.
func Query(c *fiber.Ctx, key string, defaultValue ...string) string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return val
}
