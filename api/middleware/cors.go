package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// The billing provider posts from its own infrastructure and admin tooling
// runs from arbitrary hosts, so every origin is accepted. Credentials are
// bearer tokens, never cookies.
var defaultCORSOrigins = []string{"*"}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   defaultCORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
