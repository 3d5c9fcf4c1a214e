package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS admits the configured map clients. Credentials are only allowed for
// an explicit origin list since browsers reject them with a wildcard.
func CORS(allowOrigins string) fiber.Handler {
	origins := strings.TrimSpace(allowOrigins)
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Accept",
		ExposeHeaders:    "Content-Encoding",
		AllowCredentials: origins != "*" && origins != "",
	})
}
