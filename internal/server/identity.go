package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tailscale.com/client/tailscale/apitype"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userInfoKey
)

// UserInfo identifies the caller.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var localUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// WhoIser resolves a tailnet peer address to its identity. The tsnet local
// client satisfies it.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// UserResolver maps a login to a user id, creating the user on first sight.
type UserResolver interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

func withIdentity(r *http.Request, id int, info UserInfo) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, id)
	ctx = context.WithValue(ctx, userInfoKey, info)
	return r.WithContext(ctx)
}

// DevIdentity attributes every request to the local user (id 1). Used when
// Tailscale is disabled.
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withIdentity(r, 1, localUser))
	})
}

// TailscaleIdentity resolves the caller through WhoIs and maps the tailnet
// login to a user. Unknown peers are rejected.
func TailscaleIdentity(whois WhoIser, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := whois.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who == nil || who.UserProfile == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{
				Login:       strings.ToLower(who.UserProfile.LoginName),
				DisplayName: who.UserProfile.DisplayName,
			}
			id, err := users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("resolving user: %v", err)})
				return
			}
			next.ServeHTTP(w, withIdentity(r, id, info))
		})
	}
}

// userIDFromContext returns the caller's id, 0 when no identity middleware
// ran.
func userIDFromContext(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return localUser
}

// mustUserID writes a 401 and returns false when the request carries no
// identity.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id := userIDFromContext(r)
	if id <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no user identity"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	info := userInfoFromContext(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      uid,
		"login":        info.Login,
		"display_name": info.DisplayName,
		"tailscale":    s.whois != nil,
	})
}

// UserID returns the id the identity middleware attached to r, 0 if none.
func UserID(r *http.Request) int { return userIDFromContext(r) }
