package api

import (
	"net/http"
	"time"

	"github.com/shardlabs/shardbase/internal/audit"
	"github.com/shardlabs/shardbase/internal/auth"
	"github.com/shardlabs/shardbase/internal/sso"
	"github.com/shardlabs/shardbase/internal/store"
)

type authHandler struct {
	store    store.Store
	recorder *audit.Recorder
}

// me returns the authenticated user's profile and token identity.
func (h *authHandler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	u, err := h.store.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       u,
		"tenant_id":  id.TenantID,
		"role":       id.Role,
		"session_id": id.SessionID,
		"expires_at": id.ExpiresAt,
	})
}

// logout revokes the current session. Tokens minted for it stop
// validating on the next check; the session cookie is cleared too.
func (h *authHandler) logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())

	err := h.store.RevokeSession(r.Context(), id.SessionID)
	recordAudit(r.Context(), h.recorder, "auth.logout", "session", id.SessionID, start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sso.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandler) sessions(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	sessions, err := h.store.ListActiveSessions(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// revokeSession lets an admin force-logout any session in the tenant.
func (h *authHandler) revokeSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	s, err := h.store.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.TenantID != id.TenantID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	err = h.store.RevokeSession(ctx, s.ID)
	recordAudit(ctx, h.recorder, "auth.revoke_session", "session", s.ID, start, err, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userHandler struct {
	store    store.UserStore
	recorder *audit.Recorder
}

func (h *userHandler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	users, err := h.store.ListUsers(r.Context(), id.TenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// updateRole changes a user's role. Email and tenant are immutable; SSO
// owns identity, this endpoint only adjusts authorization.
func (h *userHandler) updateRole(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	id, _ := identityFrom(r.Context())
	ctx := r.Context()

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !auth.Role(req.Role).Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	u, err := h.store.GetUser(ctx, r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if u.TenantID != id.TenantID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	u.Role = req.Role
	err = h.store.UpdateUser(ctx, u)
	recordAudit(ctx, h.recorder, "user.update_role", "user", u.ID, start, err, map[string]string{"role": u.Role})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
