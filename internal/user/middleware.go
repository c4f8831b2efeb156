package user

import (
	"net/http"
	"strings"
)

// Authenticate resolves an optional bearer token into the request context
// Requests without a token stay anonymous; a bad token is rejected with 401
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"invalid bearer token"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), claims.UserID)))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
