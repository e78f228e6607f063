package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	db "famfin-server/src/db/sql"
	"famfin-server/src/models"
	"famfin-server/src/rules"
	"famfin-server/src/totp"
	"famfin-server/src/util"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type AuthConfig struct {
	JWTSecret  []byte
	TokenTTL   time.Duration
	TOTPIssuer string
	// DefaultRules are created for every newly registered user.
	DefaultRules []rules.Definition
}

func generateToken(cfg AuthConfig, user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     user.ID,
		"username":    user.Username,
		"super_admin": user.SuperAdmin,
		"exp":         time.Now().Add(cfg.TokenTTL).Unix(),
	})
	return token.SignedString(cfg.JWTSecret)
}

func Register(pool *pgxpool.Pool, cfg AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if err := util.DecodeAndValidate(r, &req); err != nil {
			log.Errorf("Failed to decode register request body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Username = strings.TrimSpace(req.Username)

		if !util.ValidateEmail(req.Email) {
			log.Errorf("Email validation failed during registration - Email: %s", req.Email)
			http.Error(w, "invalid email format", http.StatusBadRequest)
			return
		}

		if !util.ValidateUsername(req.Username) {
			log.Errorf("Username validation failed during registration - Username: %s", req.Username)
			http.Error(w, "username must be between 3 and 30 characters", http.StatusBadRequest)
			return
		}

		if !util.ValidatePassword(req.Password) {
			log.Errorf("Password validation failed during registration - Username: %s", req.Username)
			http.Error(w, "password must be at least 8 characters with uppercase, lowercase, digit, and special character", http.StatusBadRequest)
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Errorf("Failed to hash password for user %s: %v", req.Username, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		user, err := db.CreateUser(r.Context(), pool, req, string(hashedPassword))
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key") {
				log.Errorf("Registration failed - email or username already exists - Email: %s, Username: %s", req.Email, req.Username)
				http.Error(w, "email or username already exists", http.StatusConflict)
				return
			}
			log.Errorf("Failed to create user %s: %v", req.Username, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Infof("Successful registration - User: %s, ID: %d", user.Username, user.ID)
		seedDefaultRules(r, pool, cfg, user.ID)

		tokenString, err := generateToken(cfg, user)
		if err != nil {
			log.Errorf("Failed to generate JWT token for user %s: %v", user.Username, err)
			http.Error(w, "Error generating token", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"token": tokenString,
		})
	}
}

// seedDefaultRules gives a new user the configured starter rules. Failure is
// logged and does not undo the registration.
func seedDefaultRules(r *http.Request, pool *pgxpool.Pool, cfg AuthConfig, userID int64) {
	if len(cfg.DefaultRules) == 0 {
		return
	}
	list := make([]rules.Rule, 0, len(cfg.DefaultRules))
	for _, def := range cfg.DefaultRules {
		rule, err := rules.NewRule(userID, def)
		if err != nil {
			log.Warnf("Skipping default rule %q: %v", def.Name, err)
			continue
		}
		list = append(list, rule)
	}
	if err := db.CreateTransactionRules(r.Context(), pool, userID, list); err != nil {
		log.Errorf("Failed to seed default rules for user %d: %v", userID, err)
		return
	}
	log.Infof("Seeded %d default rules for user %d", len(list), userID)
}

type loginRequest struct {
	UsernameOrEmail string `json:"username" validate:"required"`
	Password        string `json:"password" validate:"required"`
	TOTPCode        string `json:"totp_code"`
}

func Login(pool *pgxpool.Pool, cfg AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var credentials loginRequest
		if err := util.DecodeAndValidate(r, &credentials); err != nil {
			log.Errorf("Failed to decode login request body: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := db.GetUserByUsername(r.Context(), pool, credentials.UsernameOrEmail)
		if errors.Is(err, db.ErrUserNotFound) {
			user, err = db.GetUserByEmail(r.Context(), pool, credentials.UsernameOrEmail)
		}
		if err != nil {
			log.Errorf("Failed to find user during login - Username/Email: %s: %v", credentials.UsernameOrEmail, err)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		if user.Locked {
			log.Errorf("Locked user attempted login - Username/Email: %s", credentials.UsernameOrEmail)
			http.Error(w, "User account is locked", http.StatusForbidden)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)); err != nil {
			log.Errorf("Invalid password attempt for username/email %s from IP %s",
				credentials.UsernameOrEmail, r.RemoteAddr)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		if user.TwoFactorEnabled {
			if credentials.TOTPCode == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]bool{
					"two_factor_required": true,
				})
				return
			}
			if !checkTOTP(user, credentials.TOTPCode) {
				http.Error(w, "invalid code", http.StatusUnauthorized)
				return
			}
		}

		tokenString, err := generateToken(cfg, user)
		if err != nil {
			log.Errorf("Failed to generate JWT token for user %s: %v", user.Username, err)
			http.Error(w, "Error generating token", http.StatusInternalServerError)
			return
		}

		if err := db.UpdateUserLastLogin(r.Context(), pool, user.ID); err != nil {
			log.Errorf("Failed to update last_login for user %s: %v", user.Username, err)
		}

		log.Infof("Successful login - User: %s, ID: %d", user.Username, user.ID)

		writeJSON(w, http.StatusOK, map[string]string{
			"token": tokenString,
		})
	}
}

// checkTOTP reports whether code is valid for the user's stored secret. A
// stored secret that does not decode is logged and treated as a mismatch.
func checkTOTP(user *models.User, code string) bool {
	if user.TOTPSecret == nil {
		log.Warnf("No TOTP secret on file for user %d", user.ID)
		return false
	}
	ok, err := totp.Validate(*user.TOTPSecret, code)
	if err != nil {
		var invalid *totp.InvalidSecretError
		if errors.As(err, &invalid) {
			log.Errorf("Stored TOTP secret for user %d is corrupt at offset %d", user.ID, invalid.Offset)
		} else {
			log.Errorf("TOTP validation failed for user %d: %v", user.ID, err)
		}
		return false
	}
	if !ok {
		log.Warnf("Invalid TOTP code for user %d", user.ID)
	}
	return ok
}
