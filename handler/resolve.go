package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/calendar"
	"github.com/kestrelsched/engine/client"
	"github.com/kestrelsched/engine/config"
	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/engine"
	"github.com/kestrelsched/engine/model"
)

// installationIDParam extracts and parses the {id} path parameter.
func installationIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &apperr.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

// resolvedProject bundles everything a per-project handler needs after
// resolving an installation and decrypting its upstream token.
type resolvedProject struct {
	installation *model.Installation
	project      *model.Project
	settings     config.Settings
	cal          *calendar.Calendar
	upstream     client.Client
}

// resolveProject loads the installation and project row, decrypts the
// upstream access token (through the token cache), and builds an upstream
// Client and Calendar ready for the Date Engine or an analyzer.
func (d *Deps) resolveProject(ctx context.Context, installationID int64, owner string, projectNumber int) (*resolvedProject, error) {
	inst, err := db.GetInstallation(ctx, d.DB, installationID)
	if err != nil {
		return nil, err
	}

	proj, err := db.GetProjectByNumber(ctx, d.DB, installationID, owner, projectNumber)
	if err != nil {
		return nil, err
	}

	token, err := d.decryptToken(inst)
	if err != nil {
		return nil, err
	}

	settings := config.ParseSettings(inst.SettingsJSON)
	cal := calendar.New(weekendMask(settings.WeekendDays), settings.HolidayDates())

	return &resolvedProject{
		installation: inst,
		project:      proj,
		settings:     settings,
		cal:          cal,
		upstream:     d.NewClient(token),
	}, nil
}

func (d *Deps) newEngine(rp *resolvedProject, installationID int64) *engine.Engine {
	ref := client.ProjectRef{Owner: rp.project.OwnerHandle, ProjectNumber: rp.project.ProjectNumber, ExternalProjectID: rp.project.ExternalProjectID}
	return engine.New(rp.cal, rp.upstream, rp.settings, d.Logger, ref, installationID, rp.installation.IsPro())
}

// decryptToken returns the installation's cached decrypted token,
// decrypting and caching it on a miss (spec.md §9 token cache).
func (d *Deps) decryptToken(inst *model.Installation) (string, error) {
	if tok, ok := d.Tokens.Get(inst.ID); ok {
		return tok, nil
	}
	if inst.EncryptedOAuthTok == "" {
		return "", &apperr.AuthError{Reason: "installation has no connected upstream token"}
	}
	tok, err := d.Encryptor.Decrypt(inst.EncryptedOAuthTok)
	if err != nil {
		return "", &apperr.AuthError{Reason: fmt.Sprintf("decrypting upstream token: %v", err)}
	}
	d.Tokens.Put(inst.ID, tok)
	return tok, nil
}

func weekendMask(days []int) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		out[time.Weekday(d)] = true
	}
	return out
}
