package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/model"
)

const riskSelect = `SELECT id, installation_id, project_number, title, description, severity, status,
	owner, linked_issues_json, mitigation_plan, created_at, updated_at FROM risks `

// GetRisk loads one Risk Register Entry by id, scoped to an installation.
func GetRisk(ctx context.Context, conn *sql.DB, installationID, id int64) (*model.RiskRegisterEntry, error) {
	row := conn.QueryRowContext(ctx, riskSelect+`WHERE id = ? AND installation_id = ?`, id, installationID)
	return scanRisk(row)
}

// ListRisks returns every Risk Register Entry for a project, newest first.
func ListRisks(ctx context.Context, conn *sql.DB, installationID int64, projectNumber int) ([]*model.RiskRegisterEntry, error) {
	rows, err := conn.QueryContext(ctx, riskSelect+`WHERE installation_id = ? AND project_number = ? ORDER BY created_at DESC`,
		installationID, projectNumber)
	if err != nil {
		return nil, fmt.Errorf("listing risks: %w", err)
	}
	defer rows.Close()

	var out []*model.RiskRegisterEntry
	for rows.Next() {
		r, err := scanRiskRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRisk inserts a new Risk Register Entry.
func CreateRisk(ctx context.Context, conn *sql.DB, r *model.RiskRegisterEntry) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	linked, err := json.Marshal(r.LinkedIssues)
	if err != nil {
		return fmt.Errorf("encoding linked issues: %w", err)
	}
	res, err := conn.ExecContext(ctx, `INSERT INTO risks
		(installation_id, project_number, title, description, severity, status, owner, linked_issues_json, mitigation_plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.InstallationID, r.ProjectNumber, r.Title, r.Description, string(r.Severity), string(r.Status),
		r.Owner, string(linked), r.MitigationPlan, r.CreatedAt.Format(timeLayout), r.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting risk: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted risk id: %w", err)
	}
	r.ID = id
	return nil
}

// UpdateRisk replaces a Risk Register Entry's mutable fields.
func UpdateRisk(ctx context.Context, conn *sql.DB, r *model.RiskRegisterEntry) error {
	r.UpdatedAt = time.Now().UTC()
	linked, err := json.Marshal(r.LinkedIssues)
	if err != nil {
		return fmt.Errorf("encoding linked issues: %w", err)
	}
	res, err := conn.ExecContext(ctx, `UPDATE risks SET title = ?, description = ?, severity = ?, status = ?,
		owner = ?, linked_issues_json = ?, mitigation_plan = ?, updated_at = ?
		WHERE id = ? AND installation_id = ?`,
		r.Title, r.Description, string(r.Severity), string(r.Status), r.Owner, string(linked),
		r.MitigationPlan, r.UpdatedAt.Format(timeLayout), r.ID, r.InstallationID)
	if err != nil {
		return fmt.Errorf("updating risk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &apperr.NotFoundError{Kind: "risk", ID: fmt.Sprintf("%d", r.ID)}
	}
	return nil
}

// DeleteRisk removes a Risk Register Entry, scoped to an installation so one
// tenant cannot delete another's rows by guessing ids.
func DeleteRisk(ctx context.Context, conn *sql.DB, installationID, id int64) error {
	res, err := conn.ExecContext(ctx, `DELETE FROM risks WHERE id = ? AND installation_id = ?`, id, installationID)
	if err != nil {
		return fmt.Errorf("deleting risk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &apperr.NotFoundError{Kind: "risk", ID: fmt.Sprintf("%d", id)}
	}
	return nil
}

func scanRisk(row *sql.Row) (*model.RiskRegisterEntry, error) {
	var r model.RiskRegisterEntry
	var severity, status, createdAt, updatedAt, linked string
	var description, owner, mitigation sql.NullString

	err := row.Scan(&r.ID, &r.InstallationID, &r.ProjectNumber, &r.Title, &description, &severity, &status,
		&owner, &linked, &mitigation, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &apperr.NotFoundError{Kind: "risk", ID: fmt.Sprintf("%d", r.ID)}
		}
		return nil, fmt.Errorf("scanning risk: %w", err)
	}
	return finishRisk(&r, severity, status, createdAt, updatedAt, linked, description, owner, mitigation)
}

func scanRiskRow(rows *sql.Rows) (*model.RiskRegisterEntry, error) {
	var r model.RiskRegisterEntry
	var severity, status, createdAt, updatedAt, linked string
	var description, owner, mitigation sql.NullString

	err := rows.Scan(&r.ID, &r.InstallationID, &r.ProjectNumber, &r.Title, &description, &severity, &status,
		&owner, &linked, &mitigation, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning risk row: %w", err)
	}
	return finishRisk(&r, severity, status, createdAt, updatedAt, linked, description, owner, mitigation)
}

func finishRisk(r *model.RiskRegisterEntry, severity, status, createdAt, updatedAt, linked string, description, owner, mitigation sql.NullString) (*model.RiskRegisterEntry, error) {
	r.Severity = model.RiskSeverity(severity)
	r.Status = model.RiskRegisterStatus(status)
	r.Description = description.String
	r.Owner = owner.String
	r.MitigationPlan = mitigation.String

	if err := json.Unmarshal([]byte(linked), &r.LinkedIssues); err != nil {
		r.LinkedIssues = nil
	}

	var err error
	r.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	r.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}
