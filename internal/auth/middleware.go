package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Development headers accepted when no verifier is configured.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderUserID         = "X-User-ID"
	HeaderRole           = "X-Role"
)

// Middleware authenticates every request. With a verifier it requires a
// bearer token; without one it trusts the development headers.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				principal Principal
				err       error
			)
			if verifier != nil {
				principal, err = fromBearer(verifier, r)
			} else {
				principal, err = fromHeaders(r)
			}
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeUnauthorized(w, "authentication required")
			return
		}
		if !p.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fromBearer(verifier *Verifier, r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return Principal{}, ErrInvalidToken
	}
	return verifier.Verify(strings.TrimSpace(token))
}

func fromHeaders(r *http.Request) (Principal, error) {
	orgID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderOrganizationID)))
	if err != nil || orgID == uuid.Nil {
		return Principal{}, ErrInvalidToken
	}
	var userID uuid.UUID
	if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
		if userID, err = uuid.Parse(raw); err != nil {
			return Principal{}, ErrInvalidToken
		}
	}
	role := strings.TrimSpace(r.Header.Get(HeaderRole))
	if role == "" {
		role = RoleCanvasser
	}
	return Principal{UserID: userID, OrganizationID: orgID, Role: role}, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
