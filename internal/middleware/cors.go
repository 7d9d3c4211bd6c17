package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// defaultDashboardOrigin is the local dashboard dev server.
const defaultDashboardOrigin = "http://localhost:3000"

// CORS builds options for the dashboard origins. Blank entries are dropped.
// A "*" entry disables credentials since browsers reject that combination.
func CORS(allowedOrigins []string) cors.Options {
	origins := make([]string, 0, len(allowedOrigins))
	allowCreds := true
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			allowCreds = false
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = []string{defaultDashboardOrigin}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           600,
	}
}
