package daemon

import (
	"net/http"

	"meetingflow/internal/auth"
)

// authMiddleware requires a valid actor token in the Authorization header.
// A nil token service lets every request through.
func authMiddleware(tokens *auth.TokenService, next http.HandlerFunc) http.HandlerFunc {
	if tokens == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := auth.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if _, err := tokens.ValidateToken(raw); err != nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
