package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/apperr"
	"github.com/kestrelsched/engine/model"
)

const timeLayout = time.RFC3339

// GetInstallation loads one installation by its upstream installation id.
func GetInstallation(ctx context.Context, conn *sql.DB, id int64) (*model.Installation, error) {
	row := conn.QueryRowContext(ctx, `SELECT installation_id, owner_handle, owner_kind, plan, sub_status,
		sub_expires_at, billing_customer_id, billing_subscription_id, encrypted_oauth_token, settings_json,
		created_at, updated_at FROM installations WHERE installation_id = ?`, id)
	return scanInstallation(row)
}

// UpsertInstallation creates or replaces an installation row.
func UpsertInstallation(ctx context.Context, conn *sql.DB, in *model.Installation) error {
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	if in.Plan == "" {
		in.Plan = model.PlanFree
	}

	_, err := conn.ExecContext(ctx, `INSERT INTO installations
		(installation_id, owner_handle, owner_kind, plan, sub_status, sub_expires_at,
		 billing_customer_id, billing_subscription_id, encrypted_oauth_token, settings_json,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(installation_id) DO UPDATE SET
			owner_handle = excluded.owner_handle,
			owner_kind = excluded.owner_kind,
			plan = excluded.plan,
			sub_status = excluded.sub_status,
			sub_expires_at = excluded.sub_expires_at,
			billing_customer_id = excluded.billing_customer_id,
			billing_subscription_id = excluded.billing_subscription_id,
			encrypted_oauth_token = excluded.encrypted_oauth_token,
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at`,
		in.ID, in.OwnerHandle, string(in.OwnerKind), string(in.Plan), string(in.SubStatus),
		nullableTimeString(in.SubExpiresAt), in.BillingCustomerID, in.BillingSubID,
		in.EncryptedOAuthTok, in.SettingsJSON, in.CreatedAt.Format(timeLayout), in.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upserting installation: %w", err)
	}
	return nil
}

// GetInstallationByBillingCustomer loads an installation by its billing
// provider customer id, used to resolve a billing webhook event back to a
// tenant without the billing provider knowing our internal id scheme.
func GetInstallationByBillingCustomer(ctx context.Context, conn *sql.DB, billingCustomerID string) (*model.Installation, error) {
	row := conn.QueryRowContext(ctx, `SELECT installation_id, owner_handle, owner_kind, plan, sub_status,
		sub_expires_at, billing_customer_id, billing_subscription_id, encrypted_oauth_token, settings_json,
		created_at, updated_at FROM installations WHERE billing_customer_id = ?`, billingCustomerID)
	return scanInstallation(row)
}

// DeleteInstallation removes an installation and (via ON DELETE CASCADE) its
// projects and holidays — called when the upstream app is uninstalled.
func DeleteInstallation(ctx context.Context, conn *sql.DB, id int64) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM installations WHERE installation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting installation: %w", err)
	}
	return nil
}

func scanInstallation(row *sql.Row) (*model.Installation, error) {
	var in model.Installation
	var ownerKind, plan, subStatus, createdAt, updatedAt string
	var subExpires, billingCustomer, billingSub, token, settings sql.NullString

	err := row.Scan(&in.ID, &in.OwnerHandle, &ownerKind, &plan, &subStatus, &subExpires,
		&billingCustomer, &billingSub, &token, &settings, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &apperr.NotFoundError{Kind: "installation", ID: fmt.Sprintf("%d", in.ID)}
		}
		return nil, fmt.Errorf("scanning installation: %w", err)
	}

	in.OwnerKind = model.OwnerKind(ownerKind)
	in.Plan = model.PlanTier(plan)
	in.SubStatus = model.SubscriptionStatus(subStatus)
	in.BillingCustomerID = billingCustomer.String
	in.BillingSubID = billingSub.String
	in.EncryptedOAuthTok = token.String
	in.SettingsJSON = settings.String
	in.SubExpiresAt = parseNullableTime(subExpires)

	in.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	in.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &in, nil
}

func nullableTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeLayout), Valid: true}
}

func parseNullableTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
