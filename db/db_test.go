package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsched/engine/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateIdempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))
}

func TestMigrateCreatesAllTables(t *testing.T) {
	conn := openTestDB(t)
	expected := []string{"installations", "projects", "holidays", "audit_log", "risks", "documents", "field_id_cache"}
	for _, table := range expected {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestInstallationUpsertAndGet(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	in := &model.Installation{
		ID:          1,
		OwnerHandle: "acme-corp",
		OwnerKind:   model.OwnerOrganization,
		Plan:        model.PlanFree,
		SubStatus:   model.SubStatusActive,
	}
	require.NoError(t, UpsertInstallation(ctx, conn, in))

	got, err := GetInstallation(ctx, conn, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", got.OwnerHandle)
	assert.Equal(t, model.PlanFree, got.Plan)

	in.Plan = model.PlanPro
	require.NoError(t, UpsertInstallation(ctx, conn, in))
	got, err = GetInstallation(ctx, conn, 1)
	require.NoError(t, err)
	assert.True(t, got.IsPro())
}

func TestGetInstallationNotFound(t *testing.T) {
	conn := openTestDB(t)
	_, err := GetInstallation(context.Background(), conn, 999)
	require.Error(t, err)
}

func TestProjectUpsertIsKeyedOnOwnerAndNumber(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertInstallation(ctx, conn, &model.Installation{ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization}))

	p := &model.Project{InstallationID: 1, OwnerHandle: "acme", ProjectNumber: 7, ExternalProjectID: "PVT_1"}
	require.NoError(t, UpsertProject(ctx, conn, p))
	firstID := p.ID
	assert.NotZero(t, firstID)

	p2 := &model.Project{InstallationID: 1, OwnerHandle: "acme", ProjectNumber: 7, ExternalProjectID: "PVT_1_renamed"}
	require.NoError(t, UpsertProject(ctx, conn, p2))

	got, err := GetProjectByNumber(ctx, conn, 1, "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, "PVT_1_renamed", got.ExternalProjectID)
}

func TestUpdateFieldIDsStampsCache(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertInstallation(ctx, conn, &model.Installation{ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization}))
	p := &model.Project{InstallationID: 1, OwnerHandle: "acme", ProjectNumber: 1}
	require.NoError(t, UpsertProject(ctx, conn, p))

	_, fresh := FieldCacheAge(ctx, conn, p.ID)
	assert.False(t, fresh)

	require.NoError(t, UpdateFieldIDs(ctx, conn, p.ID, model.FieldIDs{StartDate: "PVTF_1"}))
	age, fresh := FieldCacheAge(ctx, conn, p.ID)
	assert.True(t, fresh)
	assert.Less(t, age.Seconds(), float64(5))
}

func TestHolidayUpsertAndList(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertInstallation(ctx, conn, &model.Installation{ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization}))

	require.NoError(t, UpsertHoliday(ctx, conn, Holiday{InstallationID: 1, Date: "2026-12-25", Name: "Christmas"}))
	require.NoError(t, UpsertHoliday(ctx, conn, Holiday{InstallationID: 1, Date: "2026-01-01", Name: "New Year"}))

	list, err := ListHolidays(ctx, conn, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-01-01", list[0].Date)

	require.NoError(t, DeleteHoliday(ctx, conn, 1, "2026-01-01"))
	list, err = ListHolidays(ctx, conn, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuditEntryInsertAndList(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertInstallation(ctx, conn, &model.Installation{ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization}))

	require.NoError(t, InsertAuditEntry(ctx, conn, &model.AuditEntry{InstallationID: 1, Action: "recalculate", DetailsJSON: `{"project":7}`}))
	require.NoError(t, InsertAuditEntry(ctx, conn, &model.AuditEntry{InstallationID: 1, Action: "save_baseline", DetailsJSON: `{"project":7}`}))

	entries, err := ListAuditEntries(ctx, conn, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "save_baseline", entries[0].Action, "most recent entry first")
}

func TestRiskCRUD(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, UpsertInstallation(ctx, conn, &model.Installation{ID: 1, OwnerHandle: "acme", OwnerKind: model.OwnerOrganization}))

	r := &model.RiskRegisterEntry{
		InstallationID: 1,
		ProjectNumber:  7,
		Title:          "Vendor API deprecation",
		Severity:       model.SeverityHigh,
		Status:         model.RiskRegisterOpen,
		LinkedIssues:   []int{42, 43},
	}
	require.NoError(t, CreateRisk(ctx, conn, r))
	assert.NotZero(t, r.ID)

	got, err := GetRisk(ctx, conn, 1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{42, 43}, got.LinkedIssues)

	got.Status = model.RiskRegisterMitigated
	require.NoError(t, UpdateRisk(ctx, conn, got))

	list, err := ListRisks(ctx, conn, 1, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.RiskRegisterMitigated, list[0].Status)

	require.NoError(t, DeleteRisk(ctx, conn, 1, r.ID))
	list, err = ListRisks(ctx, conn, 1, 7)
	require.NoError(t, err)
	assert.Len(t, list, 0)
}

func TestDeleteRiskNotFound(t *testing.T) {
	conn := openTestDB(t)
	err := DeleteRisk(context.Background(), conn, 1, 999)
	require.Error(t, err)
}
