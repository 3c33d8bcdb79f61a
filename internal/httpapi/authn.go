package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekeep.dev/internal/auth"
	"gatekeep.dev/internal/cache"
	"gatekeep.dev/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// validateToken checks the bearer access token against both the session table
// and the token signature, then stashes the user id and raw token in context.
func (a *API) validateToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		sess, _, err := a.svc.AuthenticateAccess(r.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			serverError(w, r, err)
			return
		}
		ctx := auth.ContextWithUser(r.Context(), sess.UserID)
		ctx = auth.ContextWithToken(ctx, raw)
		next(w, r.WithContext(ctx))
	}
}

// validateRefreshToken is the refresh-endpoint variant: the bearer value is a
// refresh token.
func (a *API) validateRefreshToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		sess, _, err := a.svc.AuthenticateRefresh(r.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			serverError(w, r, err)
			return
		}
		ctx := auth.ContextWithUser(r.Context(), sess.UserID)
		ctx = auth.ContextWithRefreshToken(ctx, raw)
		next(w, r.WithContext(ctx))
	}
}

// requirePermission resolves the caller's user row (through the cache) and
// asks the policy engine whether the role may perform action on object.
func (a *API) requirePermission(object, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user, err := a.cachedUser(r, userID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, http.StatusNotFound, "User not found")
				return
			}
			serverError(w, r, err)
			return
		}

		allowed, err := a.policies.Enforce(user.Role, object, action)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error", "Authorization failed")
			return
		}
		if !allowed {
			obs.Warn("access denied", map[string]any{
				"email":  user.Email,
				"role":   user.Role,
				"object": object,
				"action": action,
			})
			writeError(w, http.StatusForbidden, "Forbidden", "You don't have permission to access this resource")
			return
		}
		next(w, r)
	}
}

// cachedUser reads the user through the cache with the standard 300s TTL.
// Cache failures degrade to a direct database read.
func (a *API) cachedUser(r *http.Request, userID string) (*auth.User, error) {
	ctx := r.Context()
	key := cache.UserKey(userID)

	var cached auth.User
	if a.cache != nil {
		if hit, err := a.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	user, err := a.svc.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, key, user, cache.DefaultTTL); err != nil {
			obs.Warn("user cache write failed", map[string]any{"error": err.Error()})
		}
	}
	return user, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
