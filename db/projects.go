package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/model"
)

// GetProject loads one project by its local row id.
func GetProject(ctx context.Context, conn *sql.DB, id int64) (*model.Project, error) {
	row := conn.QueryRowContext(ctx, projectSelect+`WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByNumber loads a project by the (installation, owner, number)
// triple the upstream webhook payload identifies it with.
func GetProjectByNumber(ctx context.Context, conn *sql.DB, installationID int64, owner string, number int) (*model.Project, error) {
	row := conn.QueryRowContext(ctx, projectSelect+`WHERE installation_id = ? AND owner = ? AND project_number = ?`,
		installationID, owner, number)
	return scanProject(row)
}

// GetProjectByExternalID loads a project by the upstream project's node id,
// used to resolve a project-item webhook event back to its local row.
func GetProjectByExternalID(ctx context.Context, conn *sql.DB, installationID int64, externalProjectID string) (*model.Project, error) {
	row := conn.QueryRowContext(ctx, projectSelect+`WHERE installation_id = ? AND external_project_id = ?`,
		installationID, externalProjectID)
	return scanProject(row)
}

// ListProjectsByOwner returns every project tracked for an installation whose
// owner handle matches, used to resolve an issue-kind webhook event to the
// project(s) it may affect.
func ListProjectsByOwner(ctx context.Context, conn *sql.DB, installationID int64, owner string) ([]*model.Project, error) {
	rows, err := conn.QueryContext(ctx, projectSelect+`WHERE installation_id = ? AND owner = ? ORDER BY project_number`,
		installationID, owner)
	if err != nil {
		return nil, fmt.Errorf("listing projects by owner: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListProjects returns every project tracked for an installation.
func ListProjects(ctx context.Context, conn *sql.DB, installationID int64) ([]*model.Project, error) {
	rows, err := conn.QueryContext(ctx, projectSelect+`WHERE installation_id = ? ORDER BY project_number`, installationID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAllProjects returns every tracked project across every installation,
// used by the past-due sweep to find items whose target date needs nudging
// forward to today (spec.md §4.4).
func ListAllProjects(ctx context.Context, conn *sql.DB) ([]*model.Project, error) {
	rows, err := conn.QueryContext(ctx, projectSelect+`ORDER BY installation_id, project_number`)
	if err != nil {
		return nil, fmt.Errorf("listing all projects: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProject creates or replaces a project row, keyed on
// (installation_id, owner, project_number).
func UpsertProject(ctx context.Context, conn *sql.DB, p *model.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	res, err := conn.ExecContext(ctx, `INSERT INTO projects
		(installation_id, owner, project_number, external_project_id,
		 field_start_date, field_target_date, field_actual_end, field_baseline_start, field_baseline_target,
		 field_estimate, field_confidence, field_percent_complete, field_status,
		 settings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(installation_id, owner, project_number) DO UPDATE SET
			external_project_id = excluded.external_project_id,
			field_start_date = excluded.field_start_date,
			field_target_date = excluded.field_target_date,
			field_actual_end = excluded.field_actual_end,
			field_baseline_start = excluded.field_baseline_start,
			field_baseline_target = excluded.field_baseline_target,
			field_estimate = excluded.field_estimate,
			field_confidence = excluded.field_confidence,
			field_percent_complete = excluded.field_percent_complete,
			field_status = excluded.field_status,
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at`,
		p.InstallationID, p.OwnerHandle, p.ProjectNumber, p.ExternalProjectID,
		p.Fields.StartDate, p.Fields.TargetDate, p.Fields.ActualEnd, p.Fields.BaselineStart, p.Fields.BaselineTarget,
		p.Fields.Estimate, p.Fields.Confidence, p.Fields.PercentComplete, p.Fields.Status,
		p.SettingsJSON, p.CreatedAt.Format(timeLayout), p.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upserting project: %w", err)
	}
	if p.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			p.ID = id
		}
	}
	return nil
}

// UpdateFieldIDs persists a freshly resolved FieldIDs cache for a project and
// stamps field_id_cache.refreshed_at, per spec.md §4.2's cache-miss path.
func UpdateFieldIDs(ctx context.Context, conn *sql.DB, projectID int64, f model.FieldIDs) error {
	_, err := conn.ExecContext(ctx, `UPDATE projects SET
		field_start_date = ?, field_target_date = ?, field_actual_end = ?,
		field_baseline_start = ?, field_baseline_target = ?, field_estimate = ?,
		field_confidence = ?, field_percent_complete = ?, field_status = ?, updated_at = ?
		WHERE id = ?`,
		f.StartDate, f.TargetDate, f.ActualEnd, f.BaselineStart, f.BaselineTarget,
		f.Estimate, f.Confidence, f.PercentComplete, f.Status, time.Now().UTC().Format(timeLayout), projectID)
	if err != nil {
		return fmt.Errorf("updating field ids: %w", err)
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err = conn.ExecContext(ctx, `INSERT INTO field_id_cache (project_id, refreshed_at) VALUES (?, ?)
		ON CONFLICT(project_id) DO UPDATE SET refreshed_at = excluded.refreshed_at`, projectID, now)
	if err != nil {
		return fmt.Errorf("stamping field id cache: %w", err)
	}
	return nil
}

// FieldCacheAge reports how long ago a project's field id cache was
// refreshed. The caller treats a missing row as infinitely stale.
func FieldCacheAge(ctx context.Context, conn *sql.DB, projectID int64) (time.Duration, bool) {
	var refreshedAt string
	err := conn.QueryRowContext(ctx, `SELECT refreshed_at FROM field_id_cache WHERE project_id = ?`, projectID).Scan(&refreshedAt)
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(timeLayout, refreshedAt)
	if err != nil {
		return 0, false
	}
	return time.Since(t), true
}

const projectSelect = `SELECT id, installation_id, owner, project_number, external_project_id,
	field_start_date, field_target_date, field_actual_end, field_baseline_start, field_baseline_target,
	field_estimate, field_confidence, field_percent_complete, field_status,
	settings_json, created_at, updated_at FROM projects `

func scanProject(row *sql.Row) (*model.Project, error) {
	var p model.Project
	var createdAt, updatedAt string
	var startDate, targetDate, actualEnd, baselineStart, baselineTarget, estimate, confidence, percentComplete, status sql.NullString

	err := row.Scan(&p.ID, &p.InstallationID, &p.OwnerHandle, &p.ProjectNumber, &p.ExternalProjectID,
		&startDate, &targetDate, &actualEnd, &baselineStart, &baselineTarget,
		&estimate, &confidence, &percentComplete, &status,
		&p.SettingsJSON, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &apperr.NotFoundError{Kind: "project", ID: fmt.Sprintf("%d", p.ID)}
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	fillProjectFields(&p, startDate, targetDate, actualEnd, baselineStart, baselineTarget, estimate, confidence, percentComplete, status)

	p.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

func scanProjectRow(rows *sql.Rows) (*model.Project, error) {
	var p model.Project
	var createdAt, updatedAt string
	var startDate, targetDate, actualEnd, baselineStart, baselineTarget, estimate, confidence, percentComplete, status sql.NullString

	err := rows.Scan(&p.ID, &p.InstallationID, &p.OwnerHandle, &p.ProjectNumber, &p.ExternalProjectID,
		&startDate, &targetDate, &actualEnd, &baselineStart, &baselineTarget,
		&estimate, &confidence, &percentComplete, &status,
		&p.SettingsJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning project row: %w", err)
	}
	fillProjectFields(&p, startDate, targetDate, actualEnd, baselineStart, baselineTarget, estimate, confidence, percentComplete, status)

	p.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	p.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

func fillProjectFields(p *model.Project, startDate, targetDate, actualEnd, baselineStart, baselineTarget, estimate, confidence, percentComplete, status sql.NullString) {
	p.Fields = model.FieldIDs{
		StartDate:       startDate.String,
		TargetDate:      targetDate.String,
		ActualEnd:       actualEnd.String,
		BaselineStart:   baselineStart.String,
		BaselineTarget:  baselineTarget.String,
		Estimate:        estimate.String,
		Confidence:      confidence.String,
		PercentComplete: percentComplete.String,
		Status:          status.String,
	}
}
