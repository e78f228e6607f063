package handlers

import (
	"net/http"

	"famfin-server/src/db"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

func ClearCache() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheName := chi.URLParam(r, "cache_name")
		if err := db.ClearCacheByName(cacheName); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Infof("Cache cleared: %s", cacheName)
		writeJSON(w, http.StatusOK, map[string]string{"message": "cache cleared", "cache": cacheName})
	}
}
