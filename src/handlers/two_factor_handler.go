package handlers

import (
	"net/http"

	db "famfin-server/src/db/sql"
	"famfin-server/src/totp"
	"famfin-server/src/util"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

type twoFactorCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// EnrollTwoFactor stores a fresh pending secret and returns its provisioning
// URI. Two-factor stays off until VerifyTwoFactor accepts a code.
func EnrollTwoFactor(pool *pgxpool.Pool, cfg AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		user, err := db.GetUserByID(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to get user for 2FA enrollment - user_id: %d: %v", userID, err)
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if user.TwoFactorEnabled {
			http.Error(w, "two-factor authentication is already enabled", http.StatusConflict)
			return
		}

		secret, err := totp.GenerateSecret()
		if err != nil {
			log.Errorf("Failed to generate TOTP secret for user %d: %v", userID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if err := db.SetPendingTOTPSecret(r.Context(), pool, userID, secret); err != nil {
			log.Errorf("Failed to store pending TOTP secret for user %d: %v", userID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Infof("2FA enrollment started - User: %d", userID)
		writeJSON(w, http.StatusOK, map[string]string{
			"otpauth_url": totp.KeyURI(cfg.TOTPIssuer, user.Username, secret),
			"secret":      secret,
		})
	}
}

// VerifyTwoFactor completes enrollment. Every way the check can fail gets the
// same answer.
func VerifyTwoFactor(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var req twoFactorCodeRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := db.GetUserByID(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to get user for 2FA verification - user_id: %d: %v", userID, err)
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}
		if !checkTOTP(user, req.Code) {
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}

		if !user.TwoFactorEnabled {
			if err := db.EnableTwoFactor(r.Context(), pool, userID); err != nil {
				log.Errorf("Failed to enable 2FA for user %d: %v", userID, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			log.Infof("2FA enabled - User: %d", userID)
		}

		writeJSON(w, http.StatusOK, map[string]bool{
			"two_factor_enabled": true,
		})
	}
}

func DisableTwoFactor(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		var req twoFactorCodeRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := db.GetUserByID(r.Context(), pool, userID)
		if err != nil {
			log.Errorf("Failed to get user for 2FA disable - user_id: %d: %v", userID, err)
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}
		if !user.TwoFactorEnabled || !checkTOTP(user, req.Code) {
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}

		if err := db.DisableTwoFactor(r.Context(), pool, userID); err != nil {
			log.Errorf("Failed to disable 2FA for user %d: %v", userID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Infof("2FA disabled - User: %d", userID)
		writeJSON(w, http.StatusOK, map[string]bool{
			"two_factor_enabled": false,
		})
	}
}
