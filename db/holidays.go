package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Holiday is one non-working date recorded for an installation, on top of
// the default weekend mask (spec.md §4.1/§4.12).
type Holiday struct {
	InstallationID int64
	Date           string // YYYY-MM-DD
	Name           string
	Recurring      bool
}

// ListHolidays returns every holiday recorded for an installation.
func ListHolidays(ctx context.Context, conn *sql.DB, installationID int64) ([]Holiday, error) {
	rows, err := conn.QueryContext(ctx, `SELECT installation_id, date, name, recurring
		FROM holidays WHERE installation_id = ? ORDER BY date`, installationID)
	if err != nil {
		return nil, fmt.Errorf("listing holidays: %w", err)
	}
	defer rows.Close()

	var out []Holiday
	for rows.Next() {
		var h Holiday
		var name sql.NullString
		var recurring int
		if err := rows.Scan(&h.InstallationID, &h.Date, &name, &recurring); err != nil {
			return nil, fmt.Errorf("scanning holiday: %w", err)
		}
		h.Name = name.String
		h.Recurring = recurring != 0
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertHoliday adds or replaces one holiday.
func UpsertHoliday(ctx context.Context, conn *sql.DB, h Holiday) error {
	recurring := 0
	if h.Recurring {
		recurring = 1
	}
	_, err := conn.ExecContext(ctx, `INSERT INTO holidays (installation_id, date, name, recurring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(installation_id, date) DO UPDATE SET name = excluded.name, recurring = excluded.recurring`,
		h.InstallationID, h.Date, h.Name, recurring)
	if err != nil {
		return fmt.Errorf("upserting holiday: %w", err)
	}
	return nil
}

// DeleteHoliday removes a holiday by installation and date.
func DeleteHoliday(ctx context.Context, conn *sql.DB, installationID int64, date string) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM holidays WHERE installation_id = ? AND date = ?`, installationID, date); err != nil {
		return fmt.Errorf("deleting holiday: %w", err)
	}
	return nil
}
