package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// failureBody matches the search failure shape so every rejection parses the same way.
type failureBody struct {
	Success     bool     `json:"success"`
	Segments    []string `json:"segments"`
	SeatChanges int      `json:"seatChanges"`
	Error       string   `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(failureBody{Segments: []string{}, Error: msg})
}

// Caller returns the caller identity set by Auth, "" outside it.
func Caller(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

// Auth resolves the caller from a bearer token. tokens maps caller names to
// tokens; when empty, auth is off and callers are identified by client IP.
func Auth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := clientIP(r)

			if len(tokens) > 0 {
				token, ok := bearerToken(r)
				if !ok {
					writeFailure(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				name, ok := matchToken(tokens, token)
				if !ok {
					writeFailure(w, http.StatusUnauthorized, "invalid bearer token")
					return
				}
				caller = name
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// matchToken compares against every token so timing does not reveal which one matched.
func matchToken(tokens map[string]string, token string) (string, bool) {
	found := ""
	for name, want := range tokens {
		if subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1 {
			found = name
		}
	}
	return found, found != ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
