package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/middleware"
)

// SessionHandler exchanges a short-lived signed code for the session cookie
// every other API route requires (spec.md §7's "missing session on API →
// 401"). Issuing the code itself is the out-of-scope identity/OAuth flow's
// job (spec.md §1); this handler only verifies what it is handed and mints
// the cookie middleware.SessionMiddleware checks on subsequent requests.
type SessionHandler struct {
	deps *Deps
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(deps *Deps) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type createSessionRequest struct {
	InstallationID int64  `json:"installationId"`
	Code           string `json:"code"`
}

const sessionCodeTTL = 5 * time.Minute

// CreateSession handles POST /api/auth/session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.deps.Logger, w, err)
		return
	}
	if req.InstallationID <= 0 || req.Code == "" {
		writeError(h.deps.Logger, w, &apperr.ValidationError{Field: "installationId/code", Reason: "both are required"})
		return
	}
	if !verifySessionCode(h.deps.Config.SessionSecret, req.InstallationID, req.Code) {
		writeError(h.deps.Logger, w, &apperr.AuthError{Reason: "invalid or expired session code"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    middleware.Sign(h.deps.Config.SessionSecret, req.InstallationID),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// IssueSessionCode signs a one-time code for installationID, valid for
// sessionCodeTTL. Called by the out-of-scope OAuth callback once it has
// authenticated the caller against the upstream identity provider.
func IssueSessionCode(sessionSecret string, installationID int64) string {
	ts := time.Now().UTC().Unix()
	return fmt.Sprintf("%d:%d:%s", installationID, ts, signSessionCode(sessionSecret, installationID, ts))
}

func verifySessionCode(sessionSecret string, installationID int64, code string) bool {
	parts := strings.SplitN(code, ":", 3)
	if len(parts) != 3 {
		return false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id != installationID {
		return false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(ts, 0)) > sessionCodeTTL {
		return false
	}
	expected := signSessionCode(sessionSecret, installationID, ts)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) == 1
}

func signSessionCode(sessionSecret string, installationID, ts int64) string {
	mac := hmac.New(sha256.New, []byte(sessionSecret))
	mac.Write([]byte(fmt.Sprintf("%d:%d", installationID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}
