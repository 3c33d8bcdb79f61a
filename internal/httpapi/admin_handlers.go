package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"gatekeep.dev/internal/audit"
	"gatekeep.dev/internal/auth"
	"gatekeep.dev/internal/cache"
	"gatekeep.dev/internal/obs"
)

type policyRuleRequest struct {
	Role   string `json:"role"`
	Object string `json:"object"`
	Action string `json:"action"`
}

func (p policyRuleRequest) validate() error {
	if strings.TrimSpace(p.Role) == "" || strings.TrimSpace(p.Object) == "" || strings.TrimSpace(p.Action) == "" {
		return errors.New("role, object and action are required")
	}
	return nil
}

type roleBindingRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, groupings, err := a.policies.Policies()
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Policies retrieved successfully", map[string]any{
		"policies":         policies,
		"groupingPolicies": groupings,
	})
}

func (a *API) handleAddPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	added, err := a.policies.AddPolicy(req.Role, req.Object, req.Action)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !added {
		writeError(w, http.StatusBadRequest, "Policy already exists")
		return
	}
	_ = audit.LogEvent(r.Context(), "policy.add", map[string]any{
		"role": req.Role, "object": req.Object, "action": req.Action,
	})
	writeSuccess(w, http.StatusOK, "Policy added successfully", map[string]any{"added": true})
}

func (a *API) handleRemovePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := a.policies.RemovePolicy(req.Role, req.Object, req.Action)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Policy not found")
		return
	}
	_ = audit.LogEvent(r.Context(), "policy.remove", map[string]any{
		"role": req.Role, "object": req.Object, "action": req.Action,
	})
	writeSuccess(w, http.StatusOK, "Policy removed successfully", map[string]any{"removed": true})
}

func (a *API) handleReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if err := a.policies.Reload(); err != nil {
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "policy.reload", nil)
	writeSuccess(w, http.StatusOK, "Policies reloaded successfully", map[string]any{"reloaded": true})
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Role) == "" {
		writeError(w, http.StatusBadRequest, "userId and role are required")
		return
	}
	added, err := a.policies.AddRoleForUser(req.UserID, req.Role)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !added {
		writeError(w, http.StatusBadRequest, "Role already assigned")
		return
	}
	a.invalidateUserCache(r, req.UserID)
	_ = audit.LogEvent(r.Context(), "rbac.role.assign", map[string]any{
		"target_user_id": req.UserID, "role": req.Role,
	})
	writeSuccess(w, http.StatusOK, "Role assigned successfully", map[string]any{"assigned": true})
}

func (a *API) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	var req roleBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Role) == "" {
		writeError(w, http.StatusBadRequest, "userId and role are required")
		return
	}
	removed, err := a.policies.RemoveRoleForUser(req.UserID, req.Role)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Role binding not found")
		return
	}
	a.invalidateUserCache(r, req.UserID)
	_ = audit.LogEvent(r.Context(), "rbac.role.remove", map[string]any{
		"target_user_id": req.UserID, "role": req.Role,
	})
	writeSuccess(w, http.StatusOK, "Role removed successfully", map[string]any{"removed": true})
}

// handleListUsers serves the paginated user listing, cached per page under
// the users:all key family.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", auth.DefaultPageSize)
	key := fmt.Sprintf("%s:%d:%d", cache.AllUsersKey(), page, limit)

	if a.cache != nil {
		var cached auth.UserPage
		if hit, err := a.cache.Get(r.Context(), key, &cached); err == nil && hit {
			writeSuccess(w, http.StatusOK, "User list retrieved successfully", &cached)
			return
		}
	}

	listing, err := a.svc.ListUsers(r.Context(), page, limit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if a.cache != nil {
		if err := a.cache.Set(r.Context(), key, listing, cache.DefaultTTL); err != nil {
			obs.Warn("user listing cache write failed", map[string]any{"error": err.Error()})
		}
	}
	writeSuccess(w, http.StatusOK, "User list retrieved successfully", listing)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if _, err := a.svc.FindUser(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, r, err)
		return
	}
	roles, err := a.policies.RolesForUser(userID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Roles retrieved successfully", map[string]any{
		"userId": userID,
		"roles":  roles,
	})
}

func (a *API) handleRoleUsers(w http.ResponseWriter, r *http.Request) {
	role := r.PathValue("role")
	users, err := a.policies.UsersForRole(role)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Users retrieved successfully", map[string]any{
		"role":  role,
		"users": users,
	})
}

// handleUpdateUserRole rewrites the role column, drops the stale cache
// entries and reloads the enforcer so the change applies immediately.
func (a *API) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}
	user, err := a.svc.UpdateUserRole(r.Context(), userID, role)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, r, err)
		return
	}
	user.Role = role
	a.invalidateUserCache(r, userID)
	if err := a.policies.Reload(); err != nil {
		obs.Warn("policy reload after role update failed", map[string]any{"error": err.Error()})
	}
	_ = audit.LogEvent(r.Context(), "user.role.update", map[string]any{
		"target_user_id": userID, "role": role,
	})
	writeSuccess(w, http.StatusOK, "User role updated successfully", map[string]any{"user": user})
}

func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if a.cache != nil {
		if err := a.cache.Clear(r.Context()); err != nil {
			serverError(w, r, err)
			return
		}
	}
	if err := a.policies.Reload(); err != nil {
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "cache.clear", nil)
	writeSuccess(w, http.StatusOK, "All cache cleared and policies reloaded", map[string]any{
		"cleared": true,
		"message": "Cache and policies cleared successfully",
	})
}

func (a *API) handleClearUserCache(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	a.invalidateUserCache(r, userID)
	if err := a.policies.Reload(); err != nil {
		serverError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "cache.clear_user", map[string]any{"target_user_id": userID})
	writeSuccess(w, http.StatusOK, "User cache cleared successfully", map[string]any{
		"cleared": true,
		"userId":  userID,
	})
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		writeSuccess(w, http.StatusOK, "Cache stats retrieved successfully", cache.Stats{Keys: []string{}})
		return
	}
	stats, err := a.cache.Stats(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cache stats retrieved successfully", stats)
}

// invalidateUserCache drops the user row and role cache entries. Best effort:
// a failed delete only shortens to the TTL horizon.
func (a *API) invalidateUserCache(r *http.Request, userID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(r.Context(), cache.UserKey(userID), cache.UserRolesKey(userID)); err != nil {
		obs.Warn("user cache invalidation failed", map[string]any{
			"target_user_id": userID,
			"error":          err.Error(),
		})
	}
}
