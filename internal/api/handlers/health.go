package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
)

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	})
}
