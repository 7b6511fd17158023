package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey string

const installationContextKey contextKey = "installation_id"

// SessionCookieName is the cookie the dashboard SPA presents on every API
// call. Issuing it is the identity/OAuth flow's job (out of scope, spec.md
// §1); this middleware only verifies what it is handed.
const SessionCookieName = "kestrel_session"

// SessionMiddleware validates the signed session cookie spec.md §7 requires
// for API routes ("missing session on API → 401"), populating the
// authenticated installation id into the request context. The cookie value
// is "<installationID>.<hex hmac-sha256 of installationID>", signed with the
// configured session secret.
type SessionMiddleware struct {
	logger zerolog.Logger
	secret []byte
}

// NewSessionMiddleware builds a SessionMiddleware.
func NewSessionMiddleware(logger zerolog.Logger, sessionSecret string) *SessionMiddleware {
	return &SessionMiddleware{logger: logger, secret: []byte(sessionSecret)}
}

// Handler returns the middleware handler function.
func (sm *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeUnauthorized(w, "missing session")
			return
		}

		installationID, ok := sm.verify(cookie.Value)
		if !ok {
			writeUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), installationContextKey, installationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (sm *SessionMiddleware) verify(value string) (int64, bool) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return 0, false
	}
	installationID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}

	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(parts[0]))
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[1])) != 1 {
		return 0, false
	}
	return installationID, true
}

// Sign produces a session cookie value for installationID, for use by the
// (out-of-scope) login flow when issuing a new session.
func Sign(sessionSecret string, installationID int64) string {
	raw := strconv.FormatInt(installationID, 10)
	mac := hmac.New(sha256.New, []byte(sessionSecret))
	mac.Write([]byte(raw))
	return raw + "." + hex.EncodeToString(mac.Sum(nil))
}

// InstallationID extracts the authenticated installation id set by
// SessionMiddleware.
func InstallationID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(installationContextKey).(int64)
	return v, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"auth_error","message":"` + message + `"}`))
}
