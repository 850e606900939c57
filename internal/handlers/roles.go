package handlers

import (
	"errors"
	"net/http"

	"github.com/areassist/apiserver/internal/services"
	"github.com/areassist/apiserver/internal/store"
	"github.com/areassist/apiserver/types"
)

// requireRole loads the authenticated user and rejects anyone whose role is
// not in the allow list.
func requireRole(users *services.UserService, roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := loadCaller(w, r, users)
			if !ok {
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// requireVolunteer admits volunteers who have filed their work profile, and
// admins. The profile check is enforced here rather than trusted to the
// client: an incomplete volunteer cannot mutate issues no matter what the UI
// shows.
func requireVolunteer(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := loadCaller(w, r, users)
			if !ok {
				return
			}
			switch user.Role {
			case types.RoleAdmin:
				next.ServeHTTP(w, r)
			case types.RoleVolunteer:
				if !user.ProfileCompleted {
					writeError(w, http.StatusForbidden, "complete your volunteer profile first")
					return
				}
				next.ServeHTTP(w, r)
			default:
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

func loadCaller(w http.ResponseWriter, r *http.Request, users *services.UserService) (types.User, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}
	user, err := users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.User{}, false
	}
	return user, true
}
