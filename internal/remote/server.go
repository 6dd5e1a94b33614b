// Package remote is a reference sync backend: accounts with password
// sign-in, bearer session tokens and one merged snapshot per account.
package remote

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/snapshot"
)

type Config struct {
	Secret         string
	TokenTTL       time.Duration
	BcryptCost     int
	AuthRateLimit  int
	AuthRatePeriod time.Duration
	MaxPayload     int64
}

func (c *Config) defaults() {
	if c.TokenTTL == 0 {
		c.TokenTTL = 30 * 24 * time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.AuthRateLimit == 0 {
		c.AuthRateLimit = 10
	}
	if c.AuthRatePeriod == 0 {
		c.AuthRatePeriod = time.Minute
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = 32 << 20
	}
}

type credentials struct {
	Email    string `json:"email" validate:"notblank,email"`
	Password string `json:"password" validate:"notblank,min=6"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type syncRequest struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type syncResponse struct {
	Payload  *snapshot.Snapshot `json:"payload"`
	SyncedAt time.Time          `json:"synced_at"`
}

type statusResponse struct {
	LastSyncTime *time.Time `json:"last_sync_time"`
}

type Server struct {
	store   *Store
	tokens  *Tokens
	limiter *middleware.RateLimiter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func New(store *Store, cfg Config, logger *slog.Logger) *Server {
	cfg.defaults()
	return &Server{
		store:   store,
		tokens:  NewTokens(cfg.Secret, cfg.TokenTTL),
		limiter: middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRatePeriod),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// RateLimiter returns the auth rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limited := middleware.RateLimit(s.limiter)
	mux.Handle("POST /v1/accounts", limited(http.HandlerFunc(s.createAccount)))
	mux.Handle("POST /v1/sessions", limited(http.HandlerFunc(s.signIn)))

	authed := middleware.RequireBearer(s.tokens.Verify)
	mux.Handle("POST /v1/sync", authed(http.HandlerFunc(s.sync)))
	mux.Handle("GET /v1/sync/status", authed(http.HandlerFunc(s.status)))

	return middleware.RequestLogger(s.logger)(mux)
}

func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var creds credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return creds, false
	}
	creds.Email = strings.TrimSpace(creds.Email)
	if err := apperr.Validate(creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return creds, false
	}
	return creds, true
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.readCredentials(w, r)
	if !ok {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to create account")
		return
	}
	acct, err := s.store.CreateAccount(r.Context(), creds.Email, string(hash), s.now())
	if errors.Is(err, ErrEmailTaken) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("create account", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to create account")
		return
	}
	s.logger.Info("account created", "user_id", acct.ID)
	s.respondWithToken(w, http.StatusCreated, acct)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.readCredentials(w, r)
	if !ok {
		return
	}
	acct, err := s.store.AccountByEmail(r.Context(), creds.Email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error("get account", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to sign in")
		return
	}
	if acct == nil || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(creds.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.respondWithToken(w, http.StatusOK, acct)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, acct *Account) {
	token, err := s.tokens.Issue(acct)
	if err != nil {
		s.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to issue session")
		return
	}
	writeJSON(w, status, authResponse{Token: token, UserID: acct.ID, Email: acct.Email})
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req syncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxPayload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID != "" && req.UserID != userID {
		writeError(w, http.StatusForbidden, "user id does not match session")
		return
	}

	incoming := &snapshot.Snapshot{}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		if err := json.Unmarshal(req.Payload, incoming); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	stored, err := s.store.Snapshot(r.Context(), userID)
	if err != nil {
		s.logger.Error("load snapshot", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "unable to sync")
		return
	}
	merged := snapshot.Merge(stored, incoming)
	syncedAt := s.now().UTC().Truncate(time.Millisecond)
	if err := s.store.SaveSnapshot(r.Context(), userID, merged, syncedAt); err != nil {
		s.logger.Error("save snapshot", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "unable to sync")
		return
	}

	s.logger.Info("synced", "user_id", userID, "received", incoming.Len(), "records", merged.Len())
	writeJSON(w, http.StatusOK, syncResponse{Payload: merged, SyncedAt: syncedAt})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	last, err := s.store.LastSync(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.logger.Error("sync status", "error", err)
		writeError(w, http.StatusInternalServerError, "unable to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{LastSyncTime: last})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
