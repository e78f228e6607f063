package handlers

import (
	"encoding/json"
	"net/http"

	"famfin-server/src/middleware"

	"github.com/charmbracelet/log"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

// currentUserID reads the authenticated user. Routes using it sit behind
// JWTAuthMiddleware, so a missing id is answered with 401.
func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}
