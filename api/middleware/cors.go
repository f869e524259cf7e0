package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the storefront's allowed origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "If-Match", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "ETag"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
