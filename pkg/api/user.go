package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/docpipe/pkg/auth"
	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/types"
	"github.com/google/uuid"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return docerrors.E("api.decodeJSON", docerrors.InvalidInput, err)
	}
	return nil
}

// defaultPlanID is assigned to every newly registered tenant; the plan
// lifecycle itself lives outside this service (§1 Out of scope).
const defaultPlanID = "free"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, docerrors.E("api.handleRegister", docerrors.InvalidInput, fmt.Errorf("email and password are required")))
		return
	}
	if _, err := s.store.GetTenantByEmail(req.Email); err == nil {
		writeError(w, docerrors.E("api.handleRegister", docerrors.InvalidInput, fmt.Errorf("email already registered")))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, docerrors.E("api.handleRegister", docerrors.Internal, err))
		return
	}

	now := time.Now()
	tenant := &types.Tenant{
		ID:           uuid.New().String(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Active:       true,
		Verified:     true, // no email verification collaborator in scope; new tenants start verified
		PlanID:       defaultPlanID,
		LastReset:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateTenant(tenant); err != nil {
		writeError(w, docerrors.E("api.handleRegister", docerrors.Internal, err))
		return
	}

	pair, err := s.auth.IssueTokenPair(tenant)
	if err != nil {
		writeError(w, docerrors.E("api.handleRegister", docerrors.Internal, err))
		return
	}
	log.WithTenantID(tenant.ID).Info().Str("email", tenant.Email).Msg("tenant registered")
	writeJSON(w, http.StatusCreated, tokenPairResponse(pair))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenant, err := s.store.GetTenantByEmail(req.Email)
	if err != nil || !auth.VerifyPassword(tenant.PasswordHash, req.Password) {
		writeError(w, docerrors.E("api.handleLogin", docerrors.Unauthenticated, fmt.Errorf("invalid credentials")))
		return
	}
	if !tenant.Active {
		writeError(w, docerrors.E("api.handleLogin", docerrors.Forbidden, fmt.Errorf("account disabled")))
		return
	}

	pair, err := s.auth.IssueTokenPair(tenant)
	if err != nil {
		writeError(w, docerrors.E("api.handleLogin", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	claims, err := s.auth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	tenant, err := s.store.GetTenant(claims.Subject)
	if err != nil {
		writeError(w, docerrors.E("api.handleRefresh", docerrors.Unauthenticated, err))
		return
	}
	pair, err := s.auth.IssueTokenPair(tenant)
	if err != nil {
		writeError(w, docerrors.E("api.handleRefresh", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse(pair))
}

// handleLogout is a no-op beyond confirming the bearer token was valid:
// docpipe issues stateless JWTs and keeps no server-side session to
// revoke, matching the teacher's stateless-token posture elsewhere.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func tokenPairResponse(pair auth.TokenPair) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "bearer",
		"expires_in":    pair.ExpiresIn,
	}
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	writeJSON(w, http.StatusOK, profileView(tenant))
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.DisplayName != nil {
		tenant.DisplayName = *req.DisplayName
	}
	tenant.UpdatedAt = time.Now()
	if err := s.store.UpdateTenant(tenant); err != nil {
		writeError(w, docerrors.E("api.handleUpdateProfile", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, profileView(tenant))
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	plan, err := s.store.GetPlan(tenant.PlanID)
	if err != nil {
		writeError(w, docerrors.E("api.handleUsage", docerrors.Internal, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage_counter":        tenant.UsageCounter,
		"max_files_per_period": plan.MaxFilesPerPeriod,
		"max_file_size_bytes":  plan.MaxFileSizeBytes,
		"last_reset":           tenant.LastReset,
	})
}

func profileView(tenant *types.Tenant) map[string]interface{} {
	return map[string]interface{}{
		"id":           tenant.ID,
		"email":        tenant.Email,
		"display_name": tenant.DisplayName,
		"verified":     tenant.Verified,
		"plan_id":      tenant.PlanID,
		"created_at":   tenant.CreatedAt,
	}
}
